package api

import (
	"encoding/json"
	"net/http"

	"github.com/gislas3/hydra/internal/metrics"
	"github.com/gislas3/hydra/pkg/store"
)

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	regions, err := s.store.ListRegions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, regions)
}

func (s *Server) handleCreateRegion(w http.ResponseWriter, r *http.Request) {
	var region store.Region
	if err := json.NewDecoder(r.Body).Decode(&region); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if region.Code == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_CODE", "code is required")
		return
	}

	if err := s.store.CreateRegion(r.Context(), &region); err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, region)
}

func (s *Server) handleListJobDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.ListJobDefinitions(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleCreateJobDefinition(w http.ResponseWriter, r *http.Request) {
	var def store.JobDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if def.Name == "" {
		s.writeError(w, http.StatusBadRequest, "MISSING_NAME", "name is required")
		return
	}

	created, err := s.store.CreateJobDefinition(r.Context(), &def)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListJobSpecs(w http.ResponseWriter, r *http.Request) {
	specs, err := s.store.ListJobSpecs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, specs)
}

func (s *Server) handleCreateJobSpec(w http.ResponseWriter, r *http.Request) {
	var spec store.JobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if spec.JobDefinitionID == 0 {
		s.writeError(w, http.StatusBadRequest, "MISSING_JOB_DEFINITION_ID", "job_definition_id is required")
		return
	}
	if _, err := s.store.JobDefinition(r.Context(), spec.JobDefinitionID); err != nil {
		s.writeError(w, http.StatusBadRequest, "UNKNOWN_JOB_DEFINITION", "job_definition_id does not exist")
		return
	}

	created, err := s.store.CreateJobSpec(r.Context(), &spec)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListBatchJobs(w http.ResponseWriter, r *http.Request) {
	batchJobs, err := s.store.ListBatchJobs(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	var videoCount float64
	for _, bj := range batchJobs {
		if bj.JobSpecID == 1 && bj.Succeeded {
			videoCount++
		}
	}
	metrics.SetBatchJobsVideosTotal(videoCount)

	s.writeJSON(w, http.StatusOK, batchJobs)
}
