package deploy

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InitPayload is the operator-supplied input to the initializer: the first
// owner and the initial field values.
//
// YAML shape:
//
//	owner: alice
//	values:
//	  value: 5
type InitPayload struct {
	Owner  string         `yaml:"owner"`
	Values map[string]any `yaml:"values"`
}

// MigrationPayload carries initial values for fields appended by an
// upgrade. Fields that predate the upgrade cannot appear here.
//
// YAML shape:
//
//	values:
//	  name: "renamed box"
type MigrationPayload struct {
	Values map[string]any `yaml:"values"`
}

// LoadInitPayload reads an initializer payload from a YAML file.
func LoadInitPayload(path string) (InitPayload, error) {
	var p InitPayload
	if err := loadYAML(path, &p); err != nil {
		return InitPayload{}, fmt.Errorf("load init payload: %w", err)
	}
	return p, nil
}

// LoadMigrationPayload reads a migration payload from a YAML file.
func LoadMigrationPayload(path string) (MigrationPayload, error) {
	var p MigrationPayload
	if err := loadYAML(path, &p); err != nil {
		return MigrationPayload{}, fmt.Errorf("load migration payload: %w", err)
	}
	return p, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
