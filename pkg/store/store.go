package store

import (
	"context"

	"github.com/google/uuid"
)

// Store is the persistence boundary the scheduling core depends on. Its
// nine core operations, plus the JobSpec and JobDefinition lookups, are the
// surface the core touches; everything else here exists so the HTTP surface
// (batch ingest and the external REST CRUD collaborator) has somewhere to
// write.
type Store interface {
	// JobSpecsForParent returns the active job specs whose definition's
	// parent is parentJobID (nil selects root definitions), ordered by
	// priority descending, ties broken by insertion order.
	JobSpecsForParent(ctx context.Context, parentJobID *int64) ([]*JobSpec, error)

	// PendingBatchJobsForSpec returns the batch-jobs for spec with
	// Scheduled == false, in insertion order.
	PendingBatchJobsForSpec(ctx context.Context, specID int64) ([]*BatchJob, error)

	// BatchCountFor returns the number of batches attached to bj.
	BatchCountFor(ctx context.Context, bj *BatchJob) (uint32, error)

	// CreateBatchJob creates a new all-false, zero-tries, empty-batches
	// pending bucket for spec.
	CreateBatchJob(ctx context.Context, specID int64) (*BatchJob, error)

	// AttachBatch idempotently inserts batch into bj's M2M batch set.
	AttachBatch(ctx context.Context, bj *BatchJob, batch *Batch) error

	// Save persists mutations made to bj atomically.
	Save(ctx context.Context, bj *BatchJob) error

	// FindBatchJob looks up a batch-job by id. Returns ErrNotFound if absent.
	FindBatchJob(ctx context.Context, id int64) (*BatchJob, error)

	// FindBatch looks up a batch by id. Returns ErrNotFound if absent.
	FindBatch(ctx context.Context, batchID uuid.UUID) (*Batch, error)

	// BatchJobsForBatch returns every batch-job batch is attached to.
	BatchJobsForBatch(ctx context.Context, batch *Batch) ([]*BatchJob, error)

	// JobSpec returns the spec by id, used by the core to resolve
	// bj.JobSpecID back into the full spec.
	JobSpec(ctx context.Context, id int64) (*JobSpec, error)

	// JobDefinition returns the definition by id.
	JobDefinition(ctx context.Context, id int64) (*JobDefinition, error)

	// CreateBatch creates or, if batchID already exists, updates (bumping
	// UpdatedAt) a Batch. The returned bool is true iff a new Batch was
	// created.
	CreateBatch(ctx context.Context, b *Batch) (created bool, err error)

	// Region CRUD, backing the external REST surface.
	CreateRegion(ctx context.Context, r *Region) error
	GetRegion(ctx context.Context, code string) (*Region, error)
	ListRegions(ctx context.Context) ([]*Region, error)

	// JobDefinition/JobSpec CRUD, backing the external REST surface.
	CreateJobDefinition(ctx context.Context, d *JobDefinition) (*JobDefinition, error)
	ListJobDefinitions(ctx context.Context) ([]*JobDefinition, error)
	CreateJobSpec(ctx context.Context, s *JobSpec) (*JobSpec, error)
	ListJobSpecs(ctx context.Context) ([]*JobSpec, error)

	// ListBatchJobs backs the read-only batch-job listing and the
	// jobs-queued count.
	ListBatchJobs(ctx context.Context) ([]*BatchJob, error)
}
