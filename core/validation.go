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
	"fmt"
	"strings"
)

// ValidateDocument validates a SourceDocument before it enters the pipeline.
//
// Validation rules:
//   - DocumentKey, SourceName and SequenceKey must not be empty
//   - Kind must be valid and its variant fields must be set
//
// NOT validated:
//   - Title and PublishedAt (informational only)
func ValidateDocument(doc *SourceDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if strings.TrimSpace(doc.DocumentKey) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentKey)
	}
	if strings.TrimSpace(doc.SourceName) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySourceName)
	}
	if strings.TrimSpace(doc.SequenceKey) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySequenceKey)
	}
	if err := validateVariant(doc.Kind, doc.Podcast, doc.Document); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return nil
}

// ValidateMetadata validates a prepared Metadata bundle.
//
// Validation rules:
//   - SourceName and SequenceKey must not be empty
//   - Kind must be valid and exactly its variant must be set
func ValidateMetadata(m *Metadata) error {
	if m == nil {
		return fmt.Errorf("%w: metadata is nil", ErrInvalidMetadata)
	}
	if m.SourceName == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, ErrEmptySourceName)
	}
	if m.SequenceKey == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, ErrEmptySequenceKey)
	}
	if err := validateVariant(m.Kind, m.Podcast, m.Document); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}
	return nil
}

// ValidateSegments checks the per-source invariants of a complete segment list:
// contiguous positions starting at zero, a shared final count, non-empty content.
func ValidateSegments(segments []Segment) error {
	for i := range segments {
		s := &segments[i]
		if strings.TrimSpace(s.Content) == "" {
			return fmt.Errorf("%w: position %d: %w", ErrInvalidSegment, i, ErrEmptyContent)
		}
		if s.Position != i || s.SegmentCount != len(segments) {
			return fmt.Errorf("%w: position %d of %d (have %d of %d)",
				ErrInvalidPosition, i, len(segments), s.Position, s.SegmentCount)
		}
	}
	return nil
}

func validateVariant(kind SourceKind, podcast *PodcastFields, document *DocumentFields) error {
	switch kind {
	case SourceKindPodcast:
		if podcast == nil || document != nil {
			return ErrKindMismatch
		}
	case SourceKindDocument:
		if document == nil || podcast != nil {
			return ErrKindMismatch
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return nil
}
