// Package metrics records ingestion and maintenance counters with Prometheus.
//
// The CLI runs as a batch job, so instead of serving /metrics the recorder can
// dump its registry to a textfile for a node exporter to pick up.
package metrics
