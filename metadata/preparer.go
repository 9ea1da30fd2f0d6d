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


package metadata

import (
	"time"

	"github.com/poiesic/chronicle/core"
)

const (
	// DefaultEmbeddingModel is the model tag recorded when none is configured.
	DefaultEmbeddingModel = "text-embedding-3-small"
	// DefaultProcessingVersion is the processing-version tag written to every segment.
	DefaultProcessingVersion = "v2.0"
)

// Preparer builds the segment-independent metadata bundle for a source.
// It performs no I/O; the only impure input is the injected clock.
type Preparer struct {
	profiles          map[string]*Profile
	embeddingModel    string
	processingVersion string
	clock             func() time.Time
}

// Option configures a Preparer.
type Option func(*Preparer) error

// WithEmbeddingModel sets the embedding-model tag.
func WithEmbeddingModel(model string) Option {
	return func(p *Preparer) error {
		if model != "" {
			p.embeddingModel = model
		}
		return nil
	}
}

// WithProcessingVersion sets the processing-version tag.
func WithProcessingVersion(version string) Option {
	return func(p *Preparer) error {
		if version != "" {
			p.processingVersion = version
		}
		return nil
	}
}

// WithClock replaces the wall clock used for ProcessedAt.
func WithClock(clock func() time.Time) Option {
	return func(p *Preparer) error {
		if clock != nil {
			p.clock = clock
		}
		return nil
	}
}

// WithProfiles registers additional classification profiles, replacing
// built-ins with the same name.
func WithProfiles(profiles ...*Profile) Option {
	return func(p *Preparer) error {
		for _, profile := range profiles {
			if err := ValidateProfile(profile); err != nil {
				return err
			}
			p.profiles[profile.Name] = profile
		}
		return nil
	}
}

// NewPreparer creates a Preparer with the built-in profiles.
func NewPreparer(opts ...Option) (*Preparer, error) {
	p := &Preparer{
		profiles:          BuiltinProfiles(),
		embeddingModel:    DefaultEmbeddingModel,
		processingVersion: DefaultProcessingVersion,
		clock:             time.Now,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Profile returns the classification profile for a corpus, falling back to
// a generic profile without ranges.
func (p *Preparer) Profile(sourceName string) *Profile {
	if profile, ok := p.profiles[sourceName]; ok {
		return profile
	}
	return genericProfile(sourceName)
}

// Prepare returns the metadata bundle for doc. Ordinals outside every range
// classify as Unclassified rather than failing.
func (p *Preparer) Prepare(doc core.SourceDocument) (core.Metadata, error) {
	if err := core.ValidateDocument(&doc); err != nil {
		return core.Metadata{}, err
	}

	period, category := Unclassified, Unclassified
	profile := p.Profile(doc.SourceName)
	if ordinal, ok := profile.Ordinal(&doc); ok {
		period, category = profile.Classify(ordinal)
	}

	m := core.Metadata{
		Kind:              doc.Kind,
		SourceName:        doc.SourceName,
		SequenceKey:       doc.SequenceKey,
		Title:             doc.Title,
		Period:            period,
		Category:          category,
		PublishedAt:       doc.PublishedAt,
		ProcessedAt:       p.clock().UTC(),
		EmbeddingModel:    p.embeddingModel,
		ProcessingVersion: p.processingVersion,
		DocumentKey:       doc.DocumentKey,
		DocumentURL:       doc.DocumentURL,
	}
	if doc.Podcast != nil {
		podcast := *doc.Podcast
		m.Podcast = &podcast
	}
	if doc.Document != nil {
		document := *doc.Document
		m.Document = &document
	}
	return m, nil
}
