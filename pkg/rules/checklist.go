package rules

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/komi-kou/meta-ads-dashboard/pkg/model"
)

//go:embed checklists.yaml
var defaultChecklistYAML []byte

// ChecklistCatalog maps metric display names to remediation check items and
// improvement suggestions shown alongside alerts.
type ChecklistCatalog struct {
	Checklists  map[string][]model.CheckItem `yaml:"checklists"`
	Improvement map[string][]string          `yaml:"improvements"`
}

// DefaultChecklistCatalog parses the catalog embedded in the binary.
func DefaultChecklistCatalog() (*ChecklistCatalog, error) {
	return LoadChecklistFromBytes(defaultChecklistYAML)
}

// LoadChecklistCatalog reads a YAML catalog file.
func LoadChecklistCatalog(path string) (*ChecklistCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checklist file %s: %w", path, err)
	}
	return LoadChecklistFromBytes(data)
}

// LoadChecklistFromBytes parses YAML catalog data from raw bytes.
func LoadChecklistFromBytes(data []byte) (*ChecklistCatalog, error) {
	var catalog ChecklistCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse checklist data: %w", err)
	}
	return &catalog, nil
}

// CheckItems returns the check items for a metric display name, or an empty
// slice when the catalog has no entry.
func (c *ChecklistCatalog) CheckItems(displayName string) []model.CheckItem {
	if c == nil || c.Checklists == nil {
		return nil
	}
	return c.Checklists[displayName]
}

// Improvements returns the improvement suggestions for a metric display
// name, or an empty slice when the catalog has no entry.
func (c *ChecklistCatalog) Improvements(displayName string) []string {
	if c == nil || c.Improvement == nil {
		return nil
	}
	return c.Improvement[displayName]
}
