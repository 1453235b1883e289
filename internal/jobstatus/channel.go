package jobstatus

import (
	"context"
)

// ChannelPublisher publishes every StatusUpdate onto a buffered channel,
// for an in-process subscriber (e.g. an HTTP long-poll handler or a CLI
// progress bar) sharing the same process as the Orchestrator. Publish
// never blocks on a full channel — when the buffer is full the new update
// is dropped and the unread ones already buffered are kept.
type ChannelPublisher struct {
	ch chan JobUpdate
}

// JobUpdate pairs a StatusUpdate with the job it belongs to, since one
// ChannelPublisher instance may be shared across concurrent jobs.
type JobUpdate struct {
	JobID  string
	Update StatusUpdate
}

// NewChannelPublisher creates a ChannelPublisher with the given buffer
// size. A size of 0 still works but every Publish not immediately
// received is dropped.
func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan JobUpdate, buffer)}
}

// Updates returns the channel subscribers read from.
func (p *ChannelPublisher) Updates() <-chan JobUpdate {
	return p.ch
}

// Publish sends update for jobID, dropping it silently if the channel is
// full rather than blocking the pipeline on a slow or absent subscriber.
func (p *ChannelPublisher) Publish(ctx context.Context, jobID string, update StatusUpdate) error {
	select {
	case p.ch <- JobUpdate{JobID: jobID, Update: update}:
	default:
	}
	return nil
}

// Close releases the underlying channel. Subsequent Publish calls panic;
// callers must stop publishing before closing.
func (p *ChannelPublisher) Close() {
	close(p.ch)
}
