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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a SourceDocument failed validation.
	ErrInvalidDocument = errors.New("invalid source document")

	// ErrInvalidMetadata indicates a Metadata bundle failed validation.
	ErrInvalidMetadata = errors.New("invalid metadata")

	// ErrInvalidSegment indicates a Segment failed validation.
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrInvalidPayload indicates a stored payload could not be decoded.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptySourceName indicates the SourceName field is empty.
	ErrEmptySourceName = errors.New("source name cannot be empty")

	// ErrEmptySequenceKey indicates the SequenceKey field is empty.
	ErrEmptySequenceKey = errors.New("sequence key cannot be empty")

	// ErrEmptyDocumentKey indicates the DocumentKey field is empty.
	ErrEmptyDocumentKey = errors.New("document key cannot be empty")

	// ErrInvalidKind indicates an unknown SourceKind value.
	ErrInvalidKind = errors.New("invalid source kind")

	// ErrKindMismatch indicates the kind-specific fields do not match Kind.
	ErrKindMismatch = errors.New("kind-specific fields do not match kind")

	// ErrInvalidPosition indicates a position outside [0, segment_count).
	ErrInvalidPosition = errors.New("position out of range")
)
