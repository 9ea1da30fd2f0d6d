package badger

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Key prefixes for different data types
const (
	pointPrefix      = "point:"
	pointIndexPrefix = "pidx:"
	indexPrefix      = "idx:"
	runPrefix        = "run:"
	dimensionsKey    = "meta:dimensions"
)

// keySep separates variable-length components of composite keys.
const keySep = 0x00

// makePointKey generates a key for a point by ID.
func makePointKey(id string) []byte {
	return []byte(pointPrefix + id)
}

// makePointIndexKey generates a composite key for the (source, sequence) index.
// Format: prefix source \x00 sequence \x00 id
func makePointIndexKey(sourceName, sequenceKey, id string) []byte {
	buf := make([]byte, 0, len(pointIndexPrefix)+len(sourceName)+len(sequenceKey)+len(id)+2)
	buf = append(buf, pointIndexPrefix...)
	buf = append(buf, sourceName...)
	buf = append(buf, keySep)
	buf = append(buf, sequenceKey...)
	buf = append(buf, keySep)
	buf = append(buf, id...)
	return buf
}

// makePartialPointIndexKey generates the scan prefix for a corpus, or for one
// source when sequenceKey is set.
func makePartialPointIndexKey(sourceName, sequenceKey string) []byte {
	buf := make([]byte, 0, len(pointIndexPrefix)+len(sourceName)+len(sequenceKey)+2)
	buf = append(buf, pointIndexPrefix...)
	buf = append(buf, sourceName...)
	buf = append(buf, keySep)
	if sequenceKey != "" {
		buf = append(buf, sequenceKey...)
		buf = append(buf, keySep)
	}
	return buf
}

// pointIDFromIndexKey extracts the point id from an index key.
func pointIDFromIndexKey(key []byte) (string, error) {
	i := bytes.LastIndexByte(key, keySep)
	if i < 0 || !bytes.HasPrefix(key, []byte(pointIndexPrefix)) {
		return "", fmt.Errorf("malformed index key %q", key)
	}
	return string(key[i+1:]), nil
}

// makeIndexKey generates a key recording a payload index on field.
func makeIndexKey(field string) []byte {
	return []byte(indexPrefix + field)
}

// makeRunKey generates a key for a run record, ordered by start time.
// Format: prefix source \x00 big-endian unix nanos id
func makeRunKey(sourceName string, startedAt time.Time, runID string) []byte {
	buf := makePartialRunKey(sourceName)
	buf = binary.BigEndian.AppendUint64(buf, uint64(startedAt.UnixNano()))
	return append(buf, runID...)
}

// makePartialRunKey generates the scan prefix for a corpus's runs.
func makePartialRunKey(sourceName string) []byte {
	buf := make([]byte, 0, len(runPrefix)+len(sourceName)+9)
	buf = append(buf, runPrefix...)
	buf = append(buf, sourceName...)
	return append(buf, keySep)
}
