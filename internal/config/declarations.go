package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/burnwatch/burnwatch/internal/domain/alert"
	"github.com/burnwatch/burnwatch/internal/domain/budget"
	"github.com/burnwatch/burnwatch/internal/domain/slo"
)

// Declarations is the YAML file declaring SLO targets, budgets and
// alert rules applied at startup and on hot reload.
type Declarations struct {
	SLOTargets []slo.Target    `yaml:"slo_targets"`
	Budgets    []budget.Config `yaml:"budgets"`
	AlertRules []alert.Rule    `yaml:"alert_rules"`
}

// LoadDeclarations reads and parses the declarations file. A missing
// file is not an error; the engine starts empty.
func LoadDeclarations(path string) (*Declarations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Declarations{}, nil
		}
		return nil, fmt.Errorf("failed to read declarations file: %w", err)
	}

	var decls Declarations
	if err := yaml.Unmarshal(data, &decls); err != nil {
		return nil, fmt.Errorf("failed to parse declarations file %s: %w", path, err)
	}
	return &decls, nil
}
