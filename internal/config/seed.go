package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gislas3/hydra/pkg/store"
)

// SeedDocument is the YAML shape read from the SEED_FILE path, for local/dev
// bootstrapping of Regions, Job Definitions and Job Specs without a
// running CRUD client.
type SeedDocument struct {
	Regions        []store.Region        `yaml:"regions"`
	JobDefinitions []SeedJobDefinition    `yaml:"job_definitions"`
	JobSpecs       []SeedJobSpec          `yaml:"job_specs"`
}

// SeedJobDefinition names its parent by the Name of another entry in
// JobDefinitions rather than by a not-yet-known database id; ParentName ==
// "" means root.
type SeedJobDefinition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ParentName  string `yaml:"parent_name"`
}

// SeedJobSpec names its owning definition by Name rather than id, for the
// same reason as SeedJobDefinition.
type SeedJobSpec struct {
	JobDefinitionName  string              `yaml:"job_definition_name"`
	RunEnvironment     store.RunEnvironment `yaml:"run_environment"`
	ContainerImage     string              `yaml:"container_image"`
	Priority           uint16              `yaml:"priority"`
	Active             bool                `yaml:"active"`
	Namespace          string              `yaml:"namespace"`
	TriggerChildren    bool                `yaml:"trigger_children"`
	DataThreshold      uint32              `yaml:"data_threshold"`
	CreatedBy          store.CreatedBy     `yaml:"created_by"`
	EnvironmentVars    map[string]string   `yaml:"environment_variables"`
	K8SJobLabels       map[string]string   `yaml:"k8s_job_labels"`
	InitPhotoContainer bool                `yaml:"init_photo_container"`
	WhitelistedDevices []string            `yaml:"whitelisted_devices"`
}

// LoadSeedDocument reads and parses a seed file from disk.
func LoadSeedDocument(path string) (*SeedDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file %q: %w", path, err)
	}
	var doc SeedDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing seed file %q: %w", path, err)
	}
	return &doc, nil
}

// Apply writes the seed document's contents into s, resolving job
// definition parent/child names and job spec owning definitions as it
// goes. Intended for local/dev bootstrap only; it is not idempotent
// across repeated runs against a populated store.
func (d *SeedDocument) Apply(ctx context.Context, s store.Store) error {
	for _, r := range d.Regions {
		region := r
		if err := s.CreateRegion(ctx, &region); err != nil {
			return fmt.Errorf("seeding region %q: %w", region.Code, err)
		}
	}

	// Definitions must be listed parent-before-child: ParentName is
	// resolved against definitions already created in this pass, since
	// Store exposes no update path for a JobDefinition once created.
	definitionIDs := make(map[string]int64, len(d.JobDefinitions))
	for _, jd := range d.JobDefinitions {
		var parentID *int64
		if jd.ParentName != "" {
			id, ok := definitionIDs[jd.ParentName]
			if !ok {
				return fmt.Errorf("seeding job definition %q: parent %q must be listed first", jd.Name, jd.ParentName)
			}
			parentID = &id
		}
		created, err := s.CreateJobDefinition(ctx, &store.JobDefinition{
			Name:        jd.Name,
			Description: jd.Description,
			ParentJobID: parentID,
		})
		if err != nil {
			return fmt.Errorf("seeding job definition %q: %w", jd.Name, err)
		}
		definitionIDs[jd.Name] = created.ID
	}

	for _, spec := range d.JobSpecs {
		defID, ok := definitionIDs[spec.JobDefinitionName]
		if !ok {
			return fmt.Errorf("seeding job spec: unknown job definition %q", spec.JobDefinitionName)
		}
		_, err := s.CreateJobSpec(ctx, &store.JobSpec{
			JobDefinitionID:    defID,
			RunEnvironment:     spec.RunEnvironment,
			ContainerImage:     spec.ContainerImage,
			Priority:           spec.Priority,
			Active:             spec.Active,
			Namespace:          spec.Namespace,
			TriggerChildren:    spec.TriggerChildren,
			DataThreshold:      spec.DataThreshold,
			CreatedBy:          spec.CreatedBy,
			EnvironmentVariables: spec.EnvironmentVars,
			K8sJobLabels:       spec.K8SJobLabels,
			InitPhotoContainer: spec.InitPhotoContainer,
			WhitelistedDevices: spec.WhitelistedDevices,
		})
		if err != nil {
			return fmt.Errorf("seeding job spec for %q: %w", spec.JobDefinitionName, err)
		}
	}

	return nil
}
