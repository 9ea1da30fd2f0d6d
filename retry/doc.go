// Package retry provides the retry policy used by every external call in the
// ingestion pipeline: document fetches, embedding batches and store writes.
//
// A Policy bounds the number of attempts, backs off exponentially between
// them, and classifies which errors are permanent. The smallest unit of
// retried work is one call (one batch); nothing is retried mid-batch.
package retry
