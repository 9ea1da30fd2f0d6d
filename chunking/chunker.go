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


package chunking

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/chronicle/core"
)

const (
	// DefaultSize is the default window size in characters.
	DefaultSize = 1000
	// DefaultOverlap is the default overlap between consecutive windows.
	DefaultOverlap = 200
	// DefaultMaxSegments bounds the number of windows a single source may produce.
	DefaultMaxSegments = 5000
)

// delimiters are tried in priority order when snapping a window end.
var delimiters = [][]rune{
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune("\n\n"),
}

// Chunker splits extracted transcript text into overlapping segments whose
// boundaries are snapped to sentence or paragraph ends where possible.
// A Chunker is immutable and safe for concurrent use.
type Chunker struct {
	size        int
	overlap     int
	maxSegments int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithSize sets the target window size in characters.
func WithSize(size int) Option {
	return func(c *Chunker) error {
		if size <= 0 {
			return fmt.Errorf("%w: size %d", ErrInvalidSize, size)
		}
		c.size = size
		return nil
	}
}

// WithOverlap sets how many characters consecutive windows share.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			return fmt.Errorf("%w: overlap %d", ErrInvalidOverlap, overlap)
		}
		c.overlap = overlap
		return nil
	}
}

// WithMaxSegments sets the hard cap on windows per source.
func WithMaxSegments(max int) Option {
	return func(c *Chunker) error {
		if max <= 0 {
			return fmt.Errorf("%w: max segments %d", ErrInvalidMaxSegments, max)
		}
		c.maxSegments = max
		return nil
	}
}

// New creates a Chunker. Overlap must be smaller than size.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:        DefaultSize,
		overlap:     DefaultOverlap,
		maxSegments: DefaultMaxSegments,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.overlap >= c.size {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than size %d", ErrInvalidOverlap, c.overlap, c.size)
	}
	return c, nil
}

// Size returns the configured window size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split divides text into ordered segments tagged with meta.
// Returns ErrNoContent for blank input and ErrTooManySegments when the
// window cap is hit before the end of the text.
// Segment IDs are not assigned here.
func (c *Chunker) Split(text string, meta core.Metadata) ([]core.Segment, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrNoContent
	}

	runes := []rune(trimmed)
	n := len(runes)
	if n <= c.size {
		return finish([]core.Segment{newSegment(trimmed, 0, n, meta)}), nil
	}

	var segments []core.Segment
	start := 0
	for iterations := 0; start < n; iterations++ {
		if iterations >= c.maxSegments {
			return nil, fmt.Errorf("%w: limit %d reached at offset %d of %d",
				ErrTooManySegments, c.maxSegments, start, n)
		}

		end := min(start+c.size, n)
		if end < n {
			end = c.snap(runes, start, end)
		}

		if content := strings.TrimSpace(string(runes[start:end])); content != "" {
			segments = append(segments, newSegment(content, start, end, meta))
		}
		if end >= n {
			break
		}

		next := end - c.overlap
		if next <= start {
			next = start + max(1, c.size/2)
		}
		start = next
	}

	if len(segments) == 0 {
		return nil, ErrNoContent
	}
	return finish(segments), nil
}

// snap moves end to just after the best delimiter near it. The backward
// look-back never crosses the window midpoint; if nothing is found there,
// a sentence ending within overlap characters past end is used instead.
func (c *Chunker) snap(runes []rune, start, end int) int {
	lo := max(end-c.overlap, start+c.size/2)
	for _, d := range delimiters {
		if i := lastIndex(runes[lo:end], d); i >= 0 {
			return lo + i + len(d)
		}
	}

	from := max(lo, end-1)
	hi := min(end+c.overlap, len(runes))
	for _, d := range delimiters {
		if i := index(runes[from:hi], d); i >= 0 {
			return from + i + len(d)
		}
	}
	return end
}

func newSegment(content string, start, end int, meta core.Metadata) core.Segment {
	return core.Segment{
		Content:       content,
		ContentLength: utf8.RuneCountInString(content),
		ContentHash:   core.ContentHash(content),
		Start:         start,
		End:           end,
		Metadata:      meta,
	}
}

// finish assigns positions and backfills the final count.
func finish(segments []core.Segment) []core.Segment {
	for i := range segments {
		segments[i].Position = i
		segments[i].SegmentCount = len(segments)
	}
	return segments
}

func lastIndex(haystack, needle []rune) int {
	for i := len(haystack) - len(needle); i >= 0; i-- {
		if hasPrefix(haystack[i:], needle) {
			return i
		}
	}
	return -1
}

func index(haystack, needle []rune) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if hasPrefix(haystack[i:], needle) {
			return i
		}
	}
	return -1
}

func hasPrefix(s, prefix []rune) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := range prefix {
		if s[i] != prefix[i] {
			return false
		}
	}
	return true
}
