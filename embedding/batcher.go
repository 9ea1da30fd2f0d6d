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


package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/chronicle/ai"
	"github.com/poiesic/chronicle/metrics"
	"github.com/poiesic/chronicle/retry"
	"golang.org/x/time/rate"
)

const (
	// DefaultBatchSize is the number of texts sent per embedding request.
	DefaultBatchSize = 50
	// DefaultDelay is the minimum spacing between embedding requests.
	DefaultDelay = 100 * time.Millisecond
)

// Result holds one vector per input text, in input order.
type Result struct {
	Vectors       [][]float32
	Missing       []int // Indexes that received zero-filled vectors
	Batches       int
	FailedBatches int
}

// Batcher groups texts into bounded requests against an embedding service.
// The failure policy is fixed at construction. A Batcher is safe for
// concurrent use; the pacing limiter is shared across callers.
type Batcher struct {
	embedder   ai.Embedder
	batchSize  int
	delay      time.Duration
	policy     Policy
	dimensions int
	retry      retry.Policy
	limiter    *rate.Limiter
	metrics    *metrics.Recorder
	logger     *slog.Logger
}

// Option configures a Batcher.
type Option func(*Batcher) error

// WithBatchSize sets how many texts go into one request.
func WithBatchSize(size int) Option {
	return func(b *Batcher) error {
		if size <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidBatchSize, size)
		}
		b.batchSize = size
		return nil
	}
}

// WithDelay sets the minimum spacing between requests. Zero disables pacing.
func WithDelay(delay time.Duration) Option {
	return func(b *Batcher) error {
		if delay < 0 {
			delay = 0
		}
		b.delay = delay
		return nil
	}
}

// WithPolicy sets the batch failure policy.
func WithPolicy(policy Policy) Option {
	return func(b *Batcher) error {
		if !policy.valid() {
			return fmt.Errorf("%w: %q", ErrInvalidPolicy, policy)
		}
		b.policy = policy
		return nil
	}
}

// WithDimensions sets the length of zero-filled placeholder vectors.
func WithDimensions(dims int) Option {
	return func(b *Batcher) error {
		b.dimensions = dims
		return nil
	}
}

// WithRetry sets the retry policy applied to each batch request.
func WithRetry(policy retry.Policy) Option {
	return func(b *Batcher) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		b.retry = policy
		return nil
	}
}

// WithMetrics records batch outcomes.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(b *Batcher) error {
		b.metrics = recorder
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Batcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBatcher creates a Batcher around embedder.
func NewBatcher(embedder ai.Embedder, opts ...Option) (*Batcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	b := &Batcher{
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		delay:     DefaultDelay,
		policy:    PolicyStrict,
		retry:     retry.Default(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.policy == PolicyZeroFill && b.dimensions <= 0 {
		return nil, fmt.Errorf("%w: zero-fill policy needs dimensions", ErrInvalidPolicy)
	}

	limit := rate.Inf
	if b.delay > 0 {
		limit = rate.Every(b.delay)
	}
	b.limiter = rate.NewLimiter(limit, 1)
	b.logger = b.logger.With("component", "embedding-batcher", "policy", string(b.policy))
	return b, nil
}

// Policy returns the configured failure policy.
func (b *Batcher) Policy() Policy {
	return b.policy
}

// Embed returns one vector per text in the same order. Under PolicyStrict the
// first failed batch is returned as *EmbeddingServiceError. Under
// PolicyZeroFill failed batches are replaced by zero vectors and listed in
// Result.Missing. Context cancellation always aborts.
func (b *Batcher) Embed(ctx context.Context, texts []string) (*Result, error) {
	result := &Result{Vectors: make([][]float32, 0, len(texts))}

	for offset := 0; offset < len(texts); offset += b.batchSize {
		end := min(offset+b.batchSize, len(texts))
		batch := texts[offset:end]
		index := result.Batches
		result.Batches++

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vectors, err := b.embedBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.metrics.EmbeddingBatch(false)
			berr := &EmbeddingServiceError{Batch: index, Offset: offset, Size: len(batch), Err: err}
			if b.policy == PolicyStrict {
				b.logger.Error("embedding batch failed", "batch", index, "offset", offset, "size", len(batch), "err", err)
				return nil, berr
			}
			b.logger.Warn("embedding batch failed, substituting zero vectors",
				"batch", index, "offset", offset, "size", len(batch), "err", err)
			result.FailedBatches++
			for i := range batch {
				result.Vectors = append(result.Vectors, make([]float32, b.dimensions))
				result.Missing = append(result.Missing, offset+i)
			}
			continue
		}

		b.metrics.EmbeddingBatch(true)
		result.Vectors = append(result.Vectors, vectors...)
	}

	return result, nil
}

func (b *Batcher) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := b.retry.Do(ctx, func(ctx context.Context) error {
		v, err := b.embedder.EmbedTexts(ctx, batch)
		if err != nil {
			return err
		}
		if len(v) != len(batch) {
			return fmt.Errorf("%w: expected %d, got %d", ErrCountMismatch, len(batch), len(v))
		}
		vectors = v
		return nil
	})
	return vectors, err
}
