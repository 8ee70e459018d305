// Package observability provides structured logging, Prometheus metrics, and
// context propagation helpers shared by the pipeline reliability packages.
package observability
