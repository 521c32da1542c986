// Package routes loads the list of routes sampled by a single run from a yaml file
package routes

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:generate go run ./internal/schema schema.json

// Config is the yaml routes file
type Config struct {
	Routes []Route `yaml:"routes" json:"routes" jsonschema:"required,minItems=1,description=routes sampled on every run"`
}

// Route is a start and destination address pair
type Route struct {
	Start       string `yaml:"start" json:"start" jsonschema:"required,minLength=1,description=start address"`
	Destination string `yaml:"destination" json:"destination" jsonschema:"required,minLength=1,description=destination address"`
}

func (r Route) String() string {
	return fmt.Sprintf("%s -> %s", r.Start, r.Destination)
}

// Load reads and verifies routes file
func Load(fname string) ([]Route, error) {
	data, err := os.ReadFile(fname) //nolint:gosec // routes file location comes from the command line
	if err != nil {
		return nil, fmt.Errorf("can't read routes file %s: %w", fname, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("can't parse routes file %s: %w", fname, err)
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid routes file %s: %w", fname, err)
	}
	return cfg.Routes, nil
}

// Verify checks there is at least one route and all addresses are set
func Verify(cfg Config) error {
	if len(cfg.Routes) == 0 {
		return errors.New("at least one route is required")
	}
	for i, r := range cfg.Routes {
		if strings.TrimSpace(r.Start) == "" {
			return fmt.Errorf("route %d: start is required", i+1)
		}
		if strings.TrimSpace(r.Destination) == "" {
			return fmt.Errorf("route %d: destination is required", i+1)
		}
	}
	return nil
}
