package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gislas3/hydra/internal/houston"
	"github.com/gislas3/hydra/internal/metrics"
	"github.com/gislas3/hydra/pkg/store"
)

type createBatchRequest struct {
	BatchID  string `json:"batch_id"`
	Region   string `json:"region"`
	DeviceID string `json:"device_id"`
}

// handleCreateBatch implements POST /api/batches/: JSON or multipart body,
// create-or-update semantics, a double Houston notification on every
// success, and an Ingest Trigger fire only on a genuine create.
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	req, err := parseCreateBatchRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.BatchID == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_BATCH_ID", "batch_id is required")
		return
	}

	batchID, err := uuid.Parse(req.BatchID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BATCH_ID", "batch_id must be a valid UUID")
		return
	}

	var deviceID *uuid.UUID
	if req.DeviceID != "" {
		id, err := uuid.Parse(req.DeviceID)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "INVALID_DEVICE_ID", "device_id must be a valid UUID")
			return
		}
		deviceID = &id
	}

	batch := &store.Batch{BatchID: batchID, Region: req.Region, DeviceID: deviceID}
	created, err := s.store.CreateBatch(r.Context(), batch)
	if err != nil {
		if errors.Is(err, store.ErrRegionNotFound) {
			s.writeError(w, http.StatusBadRequest, "UNKNOWN_REGION", "region does not exist")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	s.houston.Notify(r.Context(), batch.BatchID, houston.StatusAccepted, true)
	s.houston.Notify(r.Context(), batch.BatchID, houston.StatusCompleted, true)

	statusCode := http.StatusOK
	outcome := "update"
	if created {
		statusCode = http.StatusCreated
		outcome = "create"
		if err := s.trigger.Fire(r.Context(), batch); err != nil {
			s.log.Error(err, "ingest trigger failed", "batch_id", batch.BatchID)
		}
	}
	metrics.BatchesIngestedTotal.WithLabelValues(outcome).Inc()

	s.writeJSON(w, statusCode, batch)
}

func parseCreateBatchRequest(r *http.Request) (*createBatchRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			return nil, err
		}
		return &createBatchRequest{
			BatchID:  r.FormValue("batch_id"),
			Region:   r.FormValue("region"),
			DeviceID: r.FormValue("device_id"),
		}, nil
	}

	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// jobListEntry is one job's row in a jobs-by-batch response bucket.
type jobListEntry struct {
	JobName     string  `json:"job_name"`
	TimeStarted *string `json:"time_started"`
}

type jobBucket struct {
	Total   int            `json:"Total"`
	JobList []jobListEntry `json:"Job_List"`
}

type jobsByBatchResponse struct {
	TotalJobs      int       `json:"Total_Jobs"`
	QueuedJobs     jobBucket `json:"Queued_Jobs"`
	ActiveJobs     jobBucket `json:"Active_Jobs"`
	SuccessfulJobs jobBucket `json:"Successful_Jobs"`
	FailedJobs     jobBucket `json:"Failed_Jobs"`
}

const timeLayout = "2006-01-02 15:04:05"

// handleJobsByBatch implements GET /api/jobs-by-batch/?batch_id=<UUID>.
func (s *Server) handleJobsByBatch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("batch_id")
	batchID, err := uuid.Parse(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_BATCH_ID", "Invalid batch_id requested")
		return
	}

	batch, err := s.store.FindBatch(r.Context(), batchID)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "BATCH_NOT_FOUND", "Batch doesn't exist")
		return
	}

	batchJobs, err := s.store.BatchJobsForBatch(r.Context(), batch)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	resp := jobsByBatchResponse{TotalJobs: len(batchJobs)}
	for _, bj := range batchJobs {
		def, err := s.resolveJobName(r.Context(), bj)
		if err != nil {
			continue
		}
		var ts *string
		if bj.TimeStarted != nil {
			formatted := bj.TimeStarted.Format(timeLayout)
			ts = &formatted
		}
		entry := jobListEntry{JobName: def, TimeStarted: ts}

		switch {
		case !bj.Scheduled:
			resp.QueuedJobs.Total++
			resp.QueuedJobs.JobList = append(resp.QueuedJobs.JobList, entry)
		case bj.Succeeded:
			resp.SuccessfulJobs.Total++
			resp.SuccessfulJobs.JobList = append(resp.SuccessfulJobs.JobList, entry)
		case bj.Scheduled && !bj.Finished:
			resp.ActiveJobs.Total++
			resp.ActiveJobs.JobList = append(resp.ActiveJobs.JobList, entry)
		default:
			resp.FailedJobs.Total++
			resp.FailedJobs.JobList = append(resp.FailedJobs.JobList, entry)
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// resolveJobName reconstructs the job-name grammar for a batch-job:
// <job_definition.name>-<batch_job.id>.
func (s *Server) resolveJobName(ctx context.Context, bj *store.BatchJob) (string, error) {
	spec, err := s.store.JobSpec(ctx, bj.JobSpecID)
	if err != nil {
		return "", err
	}
	def, err := s.store.JobDefinition(ctx, spec.JobDefinitionID)
	if err != nil {
		return "", err
	}
	return def.Name + "-" + strconv.FormatInt(bj.ID, 10), nil
}

func (s *Server) handleJobsQueued(w http.ResponseWriter, r *http.Request) {
	batchJobs, err := s.store.ListBatchJobs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	count := 0
	for _, bj := range batchJobs {
		if bj.Scheduled {
			continue
		}
		spec, err := s.store.JobSpec(r.Context(), bj.JobSpecID)
		if err != nil || !spec.Active {
			continue
		}
		count++
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"Total Queued Jobs": count})
}
