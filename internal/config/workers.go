package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ghostpirates/crew/pkg/models"
)

// workerSpecFile is the YAML structure of a crew.yaml worker template file.
type workerSpecFile struct {
	Workers []models.WorkerSpec `yaml:"workers"`
}

// LoadWorkerSpecs reads worker templates from a YAML file. These seed
// team formation with named specializations, starting skill proficiencies,
// and permitted tools.
func LoadWorkerSpecs(path string) ([]models.WorkerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read worker specs: %w", err)
	}

	var file workerSpecFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse worker specs: %w", err)
	}

	for i, spec := range file.Workers {
		if !spec.Specialization.Valid() {
			return nil, fmt.Errorf("worker %d: unknown specialization %q", i, spec.Specialization)
		}
		for skill, prof := range spec.Skills {
			if prof < 0 || prof > 1 {
				return nil, fmt.Errorf("worker %d: skill %q proficiency %v out of [0,1]", i, skill, prof)
			}
		}
	}

	return file.Workers, nil
}

// DefaultWorkerSpecs returns the built-in worker templates used when no
// crew.yaml is present.
func DefaultWorkerSpecs() []models.WorkerSpec {
	return []models.WorkerSpec{
		{
			Specialization: models.SpecResearcher,
			Skills:         map[string]float64{"research": 0.8, "analysis": 0.7, "writing": 0.5},
			RequiredTools:  []string{"search", "completion"},
			Capacity:       2,
		},
		{
			Specialization: models.SpecCoder,
			Skills:         map[string]float64{"coding": 0.8, "debugging": 0.7, "design": 0.6},
			RequiredTools:  []string{"code_exec", "file_io", "completion"},
			Capacity:       2,
		},
		{
			Specialization: models.SpecTester,
			Skills:         map[string]float64{"testing": 0.8, "coding": 0.5, "analysis": 0.6},
			RequiredTools:  []string{"code_exec", "completion"},
			Capacity:       2,
		},
	}
}
