// Package manifest defines the declarative plugin description consumed by the
// resolver and conflict detector, and its plugin.yaml on-disk form.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is the manifest file expected in every plugin directory.
const ManifestFileName = "plugin.yaml"

var versionRegex = regexp.MustCompile(`^v?\d+(\.[0-9A-Za-z-]+)*$`)

// Manifest describes a plugin: identity, declared dependencies, and the
// surfaces it contributes to the host application.
type Manifest struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
	License     string `yaml:"license,omitempty" json:"license,omitempty"`
	Homepage    string `yaml:"homepage,omitempty" json:"homepage,omitempty"`
	Repository  string `yaml:"repository,omitempty" json:"repository,omitempty"`

	// Dependencies maps plugin ID to a version constraint expression.
	Dependencies map[string]string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	// OptionalDependencies are resolved when present but never block install.
	OptionalDependencies map[string]string `yaml:"optional_dependencies,omitempty" json:"optional_dependencies,omitempty"`

	// Contribution surfaces checked by the conflict detector.
	Commands     []string `yaml:"commands,omitempty" json:"commands,omitempty"`
	Shortcuts    []string `yaml:"shortcuts,omitempty" json:"shortcuts,omitempty"`
	Namespaces   []string `yaml:"namespaces,omitempty" json:"namespaces,omitempty"`
	Resources    []string `yaml:"resources,omitempty" json:"resources,omitempty"`
	Capabilities []string `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`

	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Dependency is one declared edge from a manifest to another plugin.
type Dependency struct {
	ID                string `json:"id"`
	VersionConstraint string `json:"version_constraint"`
	Optional          bool   `json:"optional"`
}

// DependencyList flattens the required and optional dependency maps.
func (m *Manifest) DependencyList() []Dependency {
	deps := make([]Dependency, 0, len(m.Dependencies)+len(m.OptionalDependencies))
	for id, constraint := range m.Dependencies {
		deps = append(deps, Dependency{ID: id, VersionConstraint: constraint})
	}
	for id, constraint := range m.OptionalDependencies {
		deps = append(deps, Dependency{ID: id, VersionConstraint: constraint, Optional: true})
	}
	return deps
}

// Load loads and parses a plugin manifest from a file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &m, nil
}

// LoadFromDir loads a plugin manifest from a directory (looks for plugin.yaml).
func LoadFromDir(dir string) (*Manifest, error) {
	return Load(filepath.Join(dir, ManifestFileName))
}

// Save writes a plugin manifest to a file.
func Save(m *Manifest, path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// ValidationError represents a manifest validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate performs basic validation on a plugin manifest.
func Validate(m *Manifest) []ValidationError {
	var errors []ValidationError

	if m.ID == "" {
		errors = append(errors, ValidationError{
			Field:   "id",
			Message: "Plugin ID is required",
		})
	}

	if m.Version == "" {
		errors = append(errors, ValidationError{
			Field:   "version",
			Message: "Version is required",
		})
	}

	if m.Version != "" && !versionRegex.MatchString(m.Version) {
		errors = append(errors, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("Invalid version format: %s", m.Version),
		})
	}

	for depID := range m.Dependencies {
		if depID == m.ID {
			errors = append(errors, ValidationError{
				Field:   "dependencies",
				Message: "Plugin cannot depend on itself",
			})
		}
	}

	return errors
}
