// Package jobstatus provides the write-only JobStatus external interface
// the Orchestrator publishes progress and failure events to: an
// in-process channel-backed implementation for single-process runs, and
// a Postgres-row implementation for deployments where a separate process
// or HTTP handler polls run state.
package jobstatus

import (
	"context"
)

// Status is the coarse lifecycle state of a report generation job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// StatusUpdate is one progress event: at minimum a Status and a human
// message; ProgressPercent and Error are optional per spec.
type StatusUpdate struct {
	Status          Status
	ProgressPercent int
	Message         string
	Error           string
}

// Publisher is the write-only JobStatus external interface. The
// Orchestrator calls Publish after every stage boundary; implementations
// must not block the pipeline on a slow consumer.
type Publisher interface {
	Publish(ctx context.Context, jobID string, update StatusUpdate) error
}

// NoopPublisher discards every update; used by tests and one-shot CLI
// runs that don't need progress reporting.
type NoopPublisher struct{}

// Publish implements Publisher, discarding update.
func (NoopPublisher) Publish(_ context.Context, _ string, _ StatusUpdate) error { return nil }
