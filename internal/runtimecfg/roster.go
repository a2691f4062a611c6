package runtimecfg

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RosterEntry is one minimal user-supplied PLC declaration. Role is
// optional; entries without a role are matched to rule groups by element
// id, entries declared as sensors pre-empt sensor synthesis for their
// node.
type RosterEntry struct {
	ID        string `yaml:"id" validate:"required"`
	ElementID string `yaml:"element_id" validate:"required"`
	Address   string `yaml:"ip"`
	Role      Role   `yaml:"role" validate:"omitempty,oneof=sensor actuator"`
}

// Roster is the minimal user configuration file.
type Roster struct {
	Scada map[string]any `yaml:"scada"`
	PLCs  []RosterEntry  `yaml:"plcs" validate:"dive"`
}

// LoadRoster reads and validates a YAML roster document.
func LoadRoster(path string) (Roster, error) {
	var roster Roster
	data, err := os.ReadFile(path)
	if err != nil {
		return roster, err
	}
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return roster, fmt.Errorf("runtimecfg: parse roster: %w", err)
	}
	if err := validate.Struct(roster); err != nil {
		return roster, fmt.Errorf("runtimecfg: invalid roster: %w", err)
	}
	return roster, nil
}

var validate = validator.New()
