package backend

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Models []Model `yaml:"models"`
}

// LoadCatalog reads a static model list from a YAML file of the form
//
//	models:
//	  - id: claude-sonnet-4.5
//	    display_name: Claude Sonnet 4.5
func LoadCatalog(path string) ([]Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes catalog YAML. Entries without an id are rejected and
// a missing display name defaults to the id.
func ParseCatalog(raw []byte) ([]Model, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}

	models := make([]Model, 0, len(f.Models))
	for i, m := range f.Models {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("model catalog entry %d: id is required", i)
		}
		if strings.TrimSpace(m.Name) == "" {
			m.Name = m.ID
		}
		models = append(models, m)
	}
	return models, nil
}
