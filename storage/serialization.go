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


package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/chronicle/core"
)

// codecVersion prefixes every encoded record.
const codecVersion = 1

// serializer is the method set shared by the mus-go primitive serializers.
type serializer[T any] interface {
	Marshal(v T, bs []byte) (n int)
	Unmarshal(bs []byte) (v T, n int, err error)
	Size(v T) (size int)
}

type encoder struct {
	buf []byte
}

func put[T any](e *encoder, s serializer[T], v T) {
	size := s.Size(v)
	n := len(e.buf)
	if cap(e.buf)-n < size {
		grown := make([]byte, n, 2*cap(e.buf)+size)
		copy(grown, e.buf)
		e.buf = grown
	}
	e.buf = e.buf[:n+size]
	s.Marshal(v, e.buf[n:])
}

func (e *encoder) time(t time.Time) {
	put(e, ord.Bool, !t.IsZero())
	if !t.IsZero() {
		put(e, varint.Int64, t.UnixNano())
	}
}

type decoder struct {
	bs  []byte
	err error
}

func get[T any](d *decoder, s serializer[T]) T {
	var zero T
	if d.err != nil {
		return zero
	}
	v, n, err := s.Unmarshal(d.bs)
	if err != nil {
		d.err = fmt.Errorf("%w: %w", ErrSerializationFailed, err)
		return zero
	}
	d.bs = d.bs[n:]
	return v
}

func (d *decoder) time() time.Time {
	if !get(d, ord.Bool) {
		return time.Time{}
	}
	return time.Unix(0, get(d, varint.Int64)).UTC()
}

// length reads a collection length and rejects values the remaining input cannot hold.
func (d *decoder) length() int {
	n := get(d, varint.Int)
	if d.err == nil && (n < 0 || n > len(d.bs)) {
		d.err = fmt.Errorf("%w: invalid length %d", ErrSerializationFailed, n)
		return 0
	}
	return n
}

func (d *decoder) version() {
	if v := get(d, varint.Int); d.err == nil && v != codecVersion {
		d.err = fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
}

// MarshalPoint serializes a Point, vector included, to bytes.
func MarshalPoint(p *core.Point) []byte {
	e := &encoder{buf: make([]byte, 0, 256+len(p.Segment.Content)+4*len(p.Vector))}
	put(e, varint.Int, codecVersion)
	put(e, ord.String, p.ID)
	put(e, ord.Bool, p.EmbeddingMissing)
	put(e, varint.Int, len(p.Vector))
	for _, f := range p.Vector {
		put(e, raw.Float32, f)
	}

	s := &p.Segment
	put(e, ord.String, s.Content)
	put(e, varint.Int, s.Position)
	put(e, varint.Int, s.SegmentCount)
	put(e, varint.Int, s.ContentLength)
	put(e, ord.String, s.ContentHash)
	put(e, varint.Int, s.Start)
	put(e, varint.Int, s.End)

	m := &s.Metadata
	put(e, ord.String, string(m.Kind))
	put(e, ord.String, m.SourceName)
	put(e, ord.String, m.SequenceKey)
	put(e, ord.String, m.Title)
	put(e, ord.String, m.Period)
	put(e, ord.String, m.Category)
	put(e, ord.String, m.PublishedAt)
	e.time(m.ProcessedAt)
	put(e, ord.String, m.EmbeddingModel)
	put(e, ord.String, m.ProcessingVersion)
	put(e, ord.String, m.DocumentKey)
	put(e, ord.String, m.DocumentURL)

	put(e, ord.Bool, m.Podcast != nil)
	if m.Podcast != nil {
		put(e, varint.Int, m.Podcast.Season)
		put(e, ord.String, m.Podcast.EpisodeNumber)
	}
	put(e, ord.Bool, m.Document != nil)
	if m.Document != nil {
		put(e, ord.String, m.Document.Author)
	}
	return e.buf
}

// UnmarshalPoint deserializes a Point from bytes.
func UnmarshalPoint(data []byte) (*core.Point, error) {
	d := &decoder{bs: data}
	d.version()

	p := &core.Point{}
	p.ID = get(d, ord.String)
	p.EmbeddingMissing = get(d, ord.Bool)
	if n := d.length(); n > 0 {
		p.Vector = make([]float32, n)
		for i := range p.Vector {
			p.Vector[i] = get(d, raw.Float32)
		}
	}

	s := &p.Segment
	s.ID = p.ID
	s.Content = get(d, ord.String)
	s.Position = get(d, varint.Int)
	s.SegmentCount = get(d, varint.Int)
	s.ContentLength = get(d, varint.Int)
	s.ContentHash = get(d, ord.String)
	s.Start = get(d, varint.Int)
	s.End = get(d, varint.Int)

	m := &s.Metadata
	m.Kind = core.SourceKind(get(d, ord.String))
	m.SourceName = get(d, ord.String)
	m.SequenceKey = get(d, ord.String)
	m.Title = get(d, ord.String)
	m.Period = get(d, ord.String)
	m.Category = get(d, ord.String)
	m.PublishedAt = get(d, ord.String)
	m.ProcessedAt = d.time()
	m.EmbeddingModel = get(d, ord.String)
	m.ProcessingVersion = get(d, ord.String)
	m.DocumentKey = get(d, ord.String)
	m.DocumentURL = get(d, ord.String)

	if get(d, ord.Bool) {
		m.Podcast = &core.PodcastFields{
			Season:        get(d, varint.Int),
			EpisodeNumber: get(d, ord.String),
		}
	}
	if get(d, ord.Bool) {
		m.Document = &core.DocumentFields{Author: get(d, ord.String)}
	}

	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

// MarshalRunRecord serializes a RunRecord to bytes.
func MarshalRunRecord(run *core.RunRecord) []byte {
	e := &encoder{buf: make([]byte, 0, 128)}
	put(e, varint.Int, codecVersion)
	put(e, ord.String, run.ID)
	put(e, ord.String, run.SourceName)
	e.time(run.StartedAt)
	e.time(run.FinishedAt)
	put(e, ord.Bool, run.Force)
	put(e, varint.Int, run.Attempted)
	put(e, varint.Int, run.Succeeded)
	put(e, varint.Int, run.Skipped)
	put(e, varint.Int, run.Failed)
	put(e, varint.Int, run.Segments)
	put(e, varint.Int, len(run.Failures))
	for _, f := range run.Failures {
		put(e, ord.String, f.SequenceKey)
		put(e, ord.String, f.DocumentKey)
		put(e, ord.String, f.Stage)
		put(e, ord.String, f.Reason)
	}
	return e.buf
}

// UnmarshalRunRecord deserializes a RunRecord from bytes.
func UnmarshalRunRecord(data []byte) (*core.RunRecord, error) {
	d := &decoder{bs: data}
	d.version()

	run := &core.RunRecord{}
	run.ID = get(d, ord.String)
	run.SourceName = get(d, ord.String)
	run.StartedAt = d.time()
	run.FinishedAt = d.time()
	run.Force = get(d, ord.Bool)
	run.Attempted = get(d, varint.Int)
	run.Succeeded = get(d, varint.Int)
	run.Skipped = get(d, varint.Int)
	run.Failed = get(d, varint.Int)
	run.Segments = get(d, varint.Int)
	if n := d.length(); n > 0 {
		run.Failures = make([]core.SourceFailure, n)
		for i := range run.Failures {
			run.Failures[i] = core.SourceFailure{
				SequenceKey: get(d, ord.String),
				DocumentKey: get(d, ord.String),
				Stage:       get(d, ord.String),
				Reason:      get(d, ord.String),
			}
		}
	}

	if d.err != nil {
		return nil, d.err
	}
	return run, nil
}
