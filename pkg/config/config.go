// Package config loads the YAML resource configuration described in
// §10.3: one file per resource instance plus a global resource
// registry, unmarshaled into typed structs the way apply.go unmarshals
// a service manifest before acting on it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ResourceConfig is the per-resource-instance configuration file,
// <config>/<I>.yaml, where I is the resource instance identifier.
type ResourceConfig struct {
	AccountID string                 `yaml:"accountId"`
	Type      string                 `yaml:"type"`
	Params    map[string]interface{} `yaml:"params,omitempty"`
}

// RegistryEntry describes one resource instance in the global registry.
type RegistryEntry struct {
	Identifier string `yaml:"identifier"`
	Type       string `yaml:"type"`
}

// Registry is the global resource registry, <config>/resources.yaml.
type Registry struct {
	Resources []RegistryEntry `yaml:"resources"`
}

// LoadResourceConfig reads and parses <configDir>/<identifier>.yaml.
func LoadResourceConfig(configDir, identifier string) (*ResourceConfig, error) {
	path := filepath.Join(configDir, identifier+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	var rc ResourceConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return &rc, nil
}

// SaveResourceConfig writes rc to <configDir>/<identifier>.yaml,
// creating configDir if necessary.
func SaveResourceConfig(configDir, identifier string, rc *ResourceConfig) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("config: failed to create %s: %w", configDir, err)
	}
	data, err := yaml.Marshal(rc)
	if err != nil {
		return fmt.Errorf("config: failed to marshal resource config: %w", err)
	}
	path := filepath.Join(configDir, identifier+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}

// LoadRegistry reads and parses <configDir>/resources.yaml. A missing
// file is not an error: it means no resource has been registered yet.
func LoadRegistry(configDir string) (*Registry, error) {
	path := filepath.Join(configDir, "resources.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Registry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes reg to <configDir>/resources.yaml.
func SaveRegistry(configDir string, reg *Registry) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("config: failed to create %s: %w", configDir, err)
	}
	data, err := yaml.Marshal(reg)
	if err != nil {
		return fmt.Errorf("config: failed to marshal registry: %w", err)
	}
	path := filepath.Join(configDir, "resources.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: failed to write %s: %w", path, err)
	}
	return nil
}

// Register adds identifier to the in-memory registry (overwriting any
// existing entry of the same identifier); SaveRegistry persists it.
func (r *Registry) Register(identifier, typ string) {
	for i, e := range r.Resources {
		if e.Identifier == identifier {
			r.Resources[i].Type = typ
			return
		}
	}
	r.Resources = append(r.Resources, RegistryEntry{Identifier: identifier, Type: typ})
}

// Unregister removes identifier from the registry, if present.
func (r *Registry) Unregister(identifier string) {
	out := r.Resources[:0]
	for _, e := range r.Resources {
		if e.Identifier != identifier {
			out = append(out, e)
		}
	}
	r.Resources = out
}

// OfType returns every registered resource identifier whose type
// matches typ, in registration order. An empty typ matches everything.
func (r *Registry) OfType(typ string) []string {
	var out []string
	for _, e := range r.Resources {
		if typ == "" || e.Type == typ {
			out = append(out, e.Identifier)
		}
	}
	return out
}

// NewIdentifier derives a filesystem-safe resource identifier from a
// resource type and account id, matching the display convention
// spec.md uses for resource instance names: "<type>.<accountId>".
func NewIdentifier(resourceType, accountID string) string {
	return strings.Join([]string{resourceType, accountID}, ".")
}
