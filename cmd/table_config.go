package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	ctl "github.com/statetune/statetune/ctl"
)

// Define struct for YAML
type TableConfig struct {
	States []StateEntry `yaml:"states"`
}

type StateEntry struct {
	ID      uint32  `yaml:"id"`
	Speedup float64 `yaml:"speedup"`
	Cost    float64 `yaml:"cost"`
	// IdlePartner is optional; omitted means the state does not idle.
	IdlePartner *uint32 `yaml:"idle_partner"`
}

// LoadTable reads a control-state table from a YAML file. Entries without an
// idle_partner default to their own id (non-idle).
func LoadTable(path string) ([]ctl.ControlState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table file: %w", err)
	}

	var cfg TableConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse table file: %w", err)
	}
	if len(cfg.States) == 0 {
		return nil, fmt.Errorf("table file %s defines no states", path)
	}

	states := make([]ctl.ControlState, 0, len(cfg.States))
	for _, e := range cfg.States {
		partner := e.ID
		if e.IdlePartner != nil {
			partner = *e.IdlePartner
		}
		states = append(states, ctl.ControlState{
			ID:          e.ID,
			Speedup:     e.Speedup,
			Cost:        e.Cost,
			IdlePartner: partner,
		})
	}
	return states, nil
}
