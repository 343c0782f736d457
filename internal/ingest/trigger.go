// Package ingest wires the HTTP batch-create path to the scheduling core.
package ingest

import (
	"context"

	"github.com/gislas3/hydra/pkg/store"
)

// onAdder is the subset of the Scheduler the Trigger needs.
type onAdder interface {
	OnAddBatch(ctx context.Context, batch *store.Batch, parentJobID *int64) error
}

// Trigger is invoked after Store.CreateBatch commits a new batch. It calls
// the Scheduler directly rather than through a persistence-layer post-save
// signal hook, keeping the data flow explicit instead of routing through
// global state.
type Trigger struct {
	scheduler onAdder
}

// New constructs a Trigger over scheduler.
func New(scheduler onAdder) *Trigger {
	return &Trigger{scheduler: scheduler}
}

// Fire evaluates the matching policy for a newly created root-level batch.
func (t *Trigger) Fire(ctx context.Context, batch *store.Batch) error {
	return t.scheduler.OnAddBatch(ctx, batch, nil)
}
