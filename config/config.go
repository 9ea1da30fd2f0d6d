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


package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/poiesic/chronicle/ai"
	"github.com/poiesic/chronicle/chunking"
	"github.com/poiesic/chronicle/embedding"
	"github.com/poiesic/chronicle/ingestion"
	"github.com/poiesic/chronicle/metadata"
	"github.com/poiesic/chronicle/reconcile"
	"github.com/poiesic/chronicle/retry"
	"github.com/poiesic/chronicle/source/gdocs"
	"github.com/poiesic/chronicle/storage/qdrant"
)

// Store backends.
const (
	BackendQdrant = "qdrant"
	BackendBadger = "badger"
)

// Document source kinds.
const (
	SourceFilesystem = "filesystem"
	SourceS3         = "s3"
	SourceGoogleDocs = "gdocs"
)

// Config is the complete application configuration.
type Config struct {
	Corpus    string          `koanf:"corpus" env:"CHRONICLE_CORPUS" validate:"required"`
	Store     StoreConfig     `koanf:"store"`
	Qdrant    QdrantConfig    `koanf:"qdrant"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Chunking  ChunkingConfig  `koanf:"chunking"`
	Source    SourceConfig    `koanf:"source"`
	Retry     RetryConfig     `koanf:"retry"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Reconcile ReconcileConfig `koanf:"reconcile"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
}

// StoreConfig selects the point store.
type StoreConfig struct {
	Backend  string `koanf:"backend" validate:"oneof=qdrant badger"`
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// QdrantConfig locates the Qdrant collection.
type QdrantConfig struct {
	URL        string        `koanf:"url" env:"QDRANT_CLOUD_URL" validate:"omitempty,url"`
	APIKey     string        `koanf:"api_key" env:"QDRANT_CLOUD_API_KEY"`
	Collection string        `koanf:"collection" env:"QDRANT_COLLECTION_NAME" validate:"required"`
	Timeout    time.Duration `koanf:"timeout" validate:"gte=0"`
}

// EmbeddingConfig configures the embedding service and batching.
type EmbeddingConfig struct {
	Host       string        `koanf:"host" env:"OPENAI_BASE_URL" validate:"required"`
	Model      string        `koanf:"model" validate:"required"`
	APIKey     string        `koanf:"api_key" env:"OPENAI_API_KEY"`
	Dimensions int           `koanf:"dimensions" validate:"gt=0"`
	BatchSize  int           `koanf:"batch_size" validate:"gt=0"`
	Delay      time.Duration `koanf:"delay" validate:"gte=0"`
	Policy     string        `koanf:"policy" validate:"oneof=strict zero-fill"`
}

// ChunkingConfig sets the splitting window.
type ChunkingConfig struct {
	Size        int `koanf:"size" validate:"gt=0"`
	Overlap     int `koanf:"overlap" validate:"gte=0,ltfield=Size"`
	MaxSegments int `koanf:"max_segments" validate:"gt=0"`
}

// SourceConfig selects where the catalog and document text come from.
type SourceConfig struct {
	Catalog          string        `koanf:"catalog" validate:"oneof=filesystem s3"`
	Fetcher          string        `koanf:"fetcher" validate:"oneof=filesystem s3 gdocs"`
	MetadataDir      string        `koanf:"metadata_dir"`
	TranscriptDir    string        `koanf:"transcript_dir"`
	Bucket           string        `koanf:"bucket"`
	MetadataPrefix   string        `koanf:"metadata_prefix"`
	TranscriptPrefix string        `koanf:"transcript_prefix"`
	Region           string        `koanf:"region" env:"AWS_REGION"`
	AccessKeyID      string        `koanf:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey  string        `koanf:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	CredentialsFile  string        `koanf:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	RequestDelay     time.Duration `koanf:"request_delay"`
}

// RetryConfig is the shared retry policy for fetches, embeddings and writes.
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"gt=0"`
	BaseDelay   time.Duration `koanf:"base_delay" validate:"gt=0"`
	MaxDelay    time.Duration `koanf:"max_delay" validate:"gte=0"`
}

// PipelineConfig tunes ingestion runs.
type PipelineConfig struct {
	Workers           int    `koanf:"workers" validate:"gt=0"`
	MinContentLength  int    `koanf:"min_content_length" validate:"gte=0"`
	UpsertBatchSize   int    `koanf:"upsert_batch_size" validate:"gt=0"`
	ProcessingVersion string `koanf:"processing_version" validate:"required"`
}

// ReconcileConfig tunes maintenance deletes.
type ReconcileConfig struct {
	DeleteBatchSize int           `koanf:"delete_batch_size" validate:"gt=0"`
	Pause           time.Duration `koanf:"pause" validate:"gte=0"`
	PageSize        int           `koanf:"page_size" validate:"gt=0"`
}

// MetricsConfig controls the node-exporter textfile output.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// LogConfig controls the CLI log handler.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendQdrant,
			Path:    "chronicle.db",
		},
		Qdrant: QdrantConfig{
			Collection: "historical_sources",
			Timeout:    qdrant.DefaultTimeout,
		},
		Embedding: EmbeddingConfig{
			Host:       ai.DefaultConfig().EmbeddingHost,
			Model:      metadata.DefaultEmbeddingModel,
			Dimensions: ai.DefaultConfig().Dimensions,
			BatchSize:  embedding.DefaultBatchSize,
			Delay:      embedding.DefaultDelay,
			Policy:     string(embedding.PolicyStrict),
		},
		Chunking: ChunkingConfig{
			Size:        chunking.DefaultSize,
			Overlap:     chunking.DefaultOverlap,
			MaxSegments: chunking.DefaultMaxSegments,
		},
		Source: SourceConfig{
			Catalog:       SourceFilesystem,
			Fetcher:       SourceFilesystem,
			MetadataDir:   "data/metadata",
			TranscriptDir: "data/transcripts",
			RequestDelay:  gdocs.DefaultDelay,
		},
		Retry: RetryConfig{
			MaxAttempts: retry.Default().MaxAttempts,
			BaseDelay:   retry.Default().BaseDelay,
			MaxDelay:    retry.Default().MaxDelay,
		},
		Pipeline: PipelineConfig{
			Workers:           1,
			MinContentLength:  ingestion.DefaultMinContentLength,
			UpsertBatchSize:   ingestion.DefaultUpsertBatchSize,
			ProcessingVersion: metadata.DefaultProcessingVersion,
		},
		Reconcile: ReconcileConfig{
			DeleteBatchSize: reconcile.DefaultDeleteBatchSize,
			Pause:           reconcile.DefaultPause,
			PageSize:        100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the rules that span sections.
func (c *Config) Validate() error {
	var errs []error
	if c.Store.Backend == BackendQdrant && c.Qdrant.URL == "" {
		errs = append(errs, errors.New("qdrant.url is required for the qdrant backend"))
	}
	if c.Store.Backend == BackendBadger && c.Store.Path == "" && !c.Store.InMemory {
		errs = append(errs, errors.New("store.path is required for the badger backend"))
	}
	if c.Source.Catalog == SourceFilesystem && c.Source.MetadataDir == "" {
		errs = append(errs, errors.New("source.metadata_dir is required for a filesystem catalog"))
	}
	if c.Source.Fetcher == SourceFilesystem && c.Source.TranscriptDir == "" {
		errs = append(errs, errors.New("source.transcript_dir is required for a filesystem fetcher"))
	}
	if (c.Source.Catalog == SourceS3 || c.Source.Fetcher == SourceS3) && c.Source.Bucket == "" {
		errs = append(errs, errors.New("source.bucket is required for s3"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AIConfig returns the embedding service settings.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimensions(c.Embedding.Dimensions),
	)
}

// RetryPolicy returns the shared retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
}

// QdrantStoreConfig returns the Qdrant adapter settings.
func (c *Config) QdrantStoreConfig() qdrant.Config {
	return qdrant.Config{
		URL:        c.Qdrant.URL,
		APIKey:     c.Qdrant.APIKey,
		Collection: c.Qdrant.Collection,
		Timeout:    c.Qdrant.Timeout,
	}
}
