package evaluation

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Record is one evaluation question with its expectations.
type Record struct {
	ID               string   `yaml:"id" json:"id"`
	Tenant           string   `yaml:"tenant,omitempty" json:"tenant,omitempty"`
	Question         string   `yaml:"question" json:"question"`
	ExpectedKeywords []string `yaml:"expected_keywords" json:"expected_keywords"`
	ExpectedSource   string   `yaml:"expected_source" json:"expected_source"`
	RequiredSources  []string `yaml:"required_sources,omitempty" json:"required_sources,omitempty"`
}

// LoadDataset reads records from a YAML or JSON file.
func LoadDataset(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseDataset(data)
}

// ParseDataset decodes a YAML or JSON list of records. Records without an id
// are numbered by position, starting at 1.
func ParseDataset(data []byte) ([]Record, error) {
	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}
	for i := range records {
		if strings.TrimSpace(records[i].Question) == "" {
			return nil, fmt.Errorf("parse dataset: record %d has no question", i+1)
		}
		if records[i].ID == "" {
			records[i].ID = strconv.Itoa(i + 1)
		}
	}
	return records, nil
}
