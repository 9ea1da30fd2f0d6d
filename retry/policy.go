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


package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// Policy is the single retry policy shared by document fetches, embedding
// calls and store writes. The zero value is not usable; start from Default.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt; it doubles on each retry.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff interval. Zero means uncapped.
	MaxDelay time.Duration
	// Permanent lists errors that must not be retried (matched with errors.Is).
	Permanent []error
}

// Default returns a policy of 3 attempts starting at one second.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// WithPermanent returns a copy of the policy that also treats errs as permanent.
func (p Policy) WithPermanent(errs ...error) Policy {
	permanent := make([]error, 0, len(p.Permanent)+len(errs))
	permanent = append(permanent, p.Permanent...)
	p.Permanent = append(permanent, errs...)
	return p
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if p.BaseDelay <= 0 {
		return ErrInvalidDelay
	}
	return nil
}

// Retryable reports whether err is worth another attempt under this policy.
// Context cancellation and listed permanent errors are never retried.
func (p Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, perm := range p.Permanent {
		if errors.Is(err, perm) {
			return false
		}
	}
	return true
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted. The error from the last attempt is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := p.Validate(); err != nil {
		return err
	}

	backoff := goretry.NewExponential(p.BaseDelay)
	if p.MaxDelay > 0 {
		backoff = goretry.WithCappedDuration(p.MaxDelay, backoff)
	}
	backoff = goretry.WithMaxRetries(uint64(p.MaxAttempts-1), backoff)

	attempt := 0
	return goretry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !p.Retryable(err) {
			return err
		}
		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", p.MaxAttempts, "error", err)
		return goretry.RetryableError(err)
	})
}
