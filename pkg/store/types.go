// Package store defines the entities Hydra's scheduling core persists and
// the typed interface the core uses to read and mutate them.
package store

import (
	"time"

	"github.com/google/uuid"
)

// RunEnvironment identifies the target cluster environment for a Job_Spec.
type RunEnvironment string

const (
	RunEnvironmentAWS RunEnvironment = "AWS"
	RunEnvironmentAZ  RunEnvironment = "AZ"
)

// CreatedBy records who or what created a Job_Spec.
type CreatedBy string

const (
	CreatedByUI     CreatedBy = "ui"
	CreatedByAPI    CreatedBy = "api"
	CreatedBySystem CreatedBy = "system"
)

// Region is a named deployment zone a Batch is reported from.
type Region struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Namespace   string `json:"namespace"`
}

// Batch is an atomic upload of sensor data.
type Batch struct {
	BatchID   uuid.UUID  `json:"batch_id"`
	DeviceID  *uuid.UUID `json:"device_id,omitempty"`
	Region    string     `json:"region"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// JobDefinition is a named node in the data-processing DAG. ParentJobID nil,
// or equal to ID, marks a root definition.
type JobDefinition struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentJobID *int64 `json:"parent_job_id,omitempty"`
}

// IsRoot reports whether this definition has no parent, including the
// self-referential root convention (ParentJobID == &ID).
func (d *JobDefinition) IsRoot() bool {
	return d.ParentJobID == nil || *d.ParentJobID == d.ID
}

// JobSpec is a runnable specification of a JobDefinition.
type JobSpec struct {
	ID                   int64             `json:"id"`
	JobDefinitionID      int64             `json:"job_definition_id"`
	RunEnvironment       RunEnvironment    `json:"run_environment"`
	ContainerImage       string            `json:"container_image"`
	Priority             uint16            `json:"priority"`
	Active               bool              `json:"active"`
	Namespace            string            `json:"namespace"`
	TimeLimit            time.Duration     `json:"time_limit"`
	TriggerChildren      bool              `json:"trigger_children"`
	DataThreshold        uint32            `json:"data_threshold"`
	CreatedBy            CreatedBy         `json:"created_by"`
	EnvironmentVariables map[string]string `json:"environment_variables,omitempty"`
	K8sJobLabels         map[string]string `json:"k8s_job_labels,omitempty"`
	InitPhotoContainer   bool              `json:"init_photo_container"`
	// WhitelistedDevices holds raw device-id strings as stored; the
	// scheduler coerces each to a uuid.UUID when evaluating a batch and
	// treats the whole list as empty (accept all) if any entry is
	// malformed.
	WhitelistedDevices []string `json:"whitelisted_devices,omitempty"`
}

// BatchJob is a pending-or-executing bundle of batches for one JobSpec.
type BatchJob struct {
	ID           int64                    `json:"id"`
	JobSpecID    int64                    `json:"job_spec_id"`
	Scheduled    bool                     `json:"scheduled"`
	CreatedOnK8s bool                     `json:"created_on_k8s"`
	Started      bool                     `json:"started"`
	Finished     bool                     `json:"finished"`
	Succeeded    bool                     `json:"succeeded"`
	TimeStarted  *time.Time               `json:"time_started,omitempty"`
	Tries        uint16                   `json:"tries"`
	Batches      map[uuid.UUID]struct{}   `json:"-"`
}

// BatchIDs returns the attached batch ids in no particular order.
func (bj *BatchJob) BatchIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(bj.Batches))
	for id := range bj.Batches {
		ids = append(ids, id)
	}
	return ids
}
