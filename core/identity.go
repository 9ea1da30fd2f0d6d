// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// SegmentNamespace is the fixed UUID namespace for segment identifiers.
// Changing it changes every identifier in the store.
var SegmentNamespace = uuid.MustParse("12345678-1234-5678-1234-123456789abc")

// SegmentID derives the stable identifier of the segment at position within
// the source identified by (sourceName, sequenceKey).
// It is a name-based UUID (version 5) so the same triple always yields the same value.
func SegmentID(sourceName, sequenceKey string, position int) string {
	name := strings.Join([]string{sourceName, sequenceKey, strconv.Itoa(position)}, "\x00")
	return uuid.NewSHA1(SegmentNamespace, []byte(name)).String()
}

// AssignIDs sets the ID of every segment from its metadata and position.
func AssignIDs(segments []Segment) {
	for i := range segments {
		segments[i].ID = SegmentID(segments[i].Metadata.SourceName, segments[i].Metadata.SequenceKey, segments[i].Position)
	}
}

// ContentHash returns a hex BLAKE2b-128 fingerprint of text.
// Two segments with the same hash carry identical content.
func ContentHash(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// NewRunID returns a new time-ordered run identifier.
func NewRunID() string {
	return ksuid.New().String()
}
