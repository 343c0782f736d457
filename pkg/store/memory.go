package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded, process-local Store implementation. It
// backs cmd/hydra-server's local/dev runs and every core test; swapping in a
// real database later means writing a new Store, not touching the core.
type MemoryStore struct {
	mu sync.Mutex

	regions        map[string]*Region
	batches        map[uuid.UUID]*Batch
	jobDefinitions map[int64]*JobDefinition
	jobSpecs       map[int64]*JobSpec
	batchJobs      map[int64]*BatchJob

	// specSeq and batchJobSeq record each record's insertion sequence,
	// drawn from the single nextSeq counter, so JobSpecsForParent and
	// PendingBatchJobsForSpec can tie-break by insertion order without
	// relying on map iteration.
	specSeq     map[int64]uint64
	batchJobSeq map[int64]uint64

	nextDefinitionID int64
	nextSpecID       int64
	nextBatchJobID   int64
	nextSeq          uint64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		regions:        make(map[string]*Region),
		batches:        make(map[uuid.UUID]*Batch),
		jobDefinitions: make(map[int64]*JobDefinition),
		jobSpecs:       make(map[int64]*JobSpec),
		batchJobs:      make(map[int64]*BatchJob),
		specSeq:        make(map[int64]uint64),
		batchJobSeq:    make(map[int64]uint64),
	}
}

func (s *MemoryStore) seq() uint64 {
	s.nextSeq++
	return s.nextSeq
}

func (s *MemoryStore) JobSpecsForParent(ctx context.Context, parentJobID *int64) ([]*JobSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*JobSpec
	for _, spec := range s.jobSpecs {
		if !spec.Active {
			continue
		}
		def, ok := s.jobDefinitions[spec.JobDefinitionID]
		if !ok {
			continue
		}
		if parentJobID == nil {
			if def.IsRoot() {
				matches = append(matches, spec)
			}
			continue
		}
		if def.ParentJobID != nil && *def.ParentJobID == *parentJobID {
			matches = append(matches, spec)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return s.specSeq[matches[i].ID] < s.specSeq[matches[j].ID]
	})
	return matches, nil
}

func (s *MemoryStore) PendingBatchJobsForSpec(ctx context.Context, specID int64) ([]*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*BatchJob
	for _, bj := range s.batchJobs {
		if bj.JobSpecID == specID && !bj.Scheduled {
			pending = append(pending, bj)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return s.batchJobSeq[pending[i].ID] < s.batchJobSeq[pending[j].ID]
	})
	return pending, nil
}

func (s *MemoryStore) BatchCountFor(ctx context.Context, bj *BatchJob) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.batchJobs[bj.ID]
	if !ok {
		return 0, ErrNotFound
	}
	return uint32(len(stored.Batches)), nil
}

func (s *MemoryStore) CreateBatchJob(ctx context.Context, specID int64) (*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBatchJobID++
	bj := &BatchJob{
		ID:        s.nextBatchJobID,
		JobSpecID: specID,
		Batches:   make(map[uuid.UUID]struct{}),
	}
	s.batchJobs[bj.ID] = bj
	s.batchJobSeq[bj.ID] = s.seq()
	return bj, nil
}

func (s *MemoryStore) AttachBatch(ctx context.Context, bj *BatchJob, batch *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.batchJobs[bj.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Batches == nil {
		stored.Batches = make(map[uuid.UUID]struct{})
	}
	stored.Batches[batch.BatchID] = struct{}{}
	bj.Batches = stored.Batches
	return nil
}

func (s *MemoryStore) Save(ctx context.Context, bj *BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.batchJobs[bj.ID]
	if !ok {
		return ErrNotFound
	}
	batches := stored.Batches
	*stored = *bj
	if stored.Batches == nil {
		stored.Batches = batches
	}
	return nil
}

func (s *MemoryStore) FindBatchJob(ctx context.Context, id int64) (*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bj, ok := s.batchJobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return bj, nil
}

func (s *MemoryStore) FindBatch(ctx context.Context, batchID uuid.UUID) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) BatchJobsForBatch(ctx context.Context, batch *Batch) ([]*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*BatchJob
	for _, bj := range s.batchJobs {
		if _, ok := bj.Batches[batch.BatchID]; ok {
			result = append(result, bj)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *MemoryStore) JobSpec(ctx context.Context, id int64) (*JobSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spec, ok := s.jobSpecs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return spec, nil
}

func (s *MemoryStore) JobDefinition(ctx context.Context, id int64) (*JobDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.jobDefinitions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return def, nil
}

func (s *MemoryStore) CreateBatch(ctx context.Context, b *Batch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.regions[b.Region]; !ok {
		return false, ErrRegionNotFound
	}

	if existing, ok := s.batches[b.BatchID]; ok {
		existing.UpdatedAt = time.Now()
		if b.DeviceID != nil {
			existing.DeviceID = b.DeviceID
		}
		*b = *existing
		return false, nil
	}

	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	s.batches[b.BatchID] = b
	return true, nil
}

func (s *MemoryStore) CreateRegion(ctx context.Context, r *Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.regions[r.Code] = r
	return nil
}

func (s *MemoryStore) GetRegion(ctx context.Context, code string) (*Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.regions[code]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) ListRegions(ctx context.Context) ([]*Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Region, 0, len(s.regions))
	for _, r := range s.regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemoryStore) CreateJobDefinition(ctx context.Context, d *JobDefinition) (*JobDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDefinitionID++
	d.ID = s.nextDefinitionID
	s.jobDefinitions[d.ID] = d
	return d, nil
}

func (s *MemoryStore) ListJobDefinitions(ctx context.Context) ([]*JobDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*JobDefinition, 0, len(s.jobDefinitions))
	for _, d := range s.jobDefinitions {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateJobSpec(ctx context.Context, spec *JobSpec) (*JobSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSpecID++
	spec.ID = s.nextSpecID
	s.jobSpecs[spec.ID] = spec
	s.specSeq[spec.ID] = s.seq()
	return spec, nil
}

func (s *MemoryStore) ListJobSpecs(ctx context.Context) ([]*JobSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*JobSpec, 0, len(s.jobSpecs))
	for _, spec := range s.jobSpecs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListBatchJobs(ctx context.Context) ([]*BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*BatchJob, 0, len(s.batchJobs))
	for _, bj := range s.batchJobs {
		out = append(out, bj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
