package resolver

import (
	"context"

	"github.com/inkwell/hostkit/pkg/manifest"
)

// Source identifies where a resolved dependency was found.
type Source string

const (
	SourceInstalled   Source = "installed"
	SourceMarketplace Source = "marketplace"
	SourceMissing     Source = "missing"
)

// ResolvedDependency is one entry per distinct plugin ID visited during a
// resolution.
type ResolvedDependency struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	Constraint string `json:"constraint,omitempty"`
	Satisfies  bool   `json:"satisfies"`
	Source     Source `json:"source"`
}

// Requester names a plugin and the constraint it placed on a dependency.
type Requester struct {
	PluginID   string `json:"plugin_id"`
	Constraint string `json:"constraint"`
}

// DependencyConflict is emitted when an installed version fails a requester's
// constraint.
type DependencyConflict struct {
	DependencyID string      `json:"dependency_id"`
	RequiredBy   []Requester `json:"required_by"`
	Reason       string      `json:"reason"`
}

// ResolutionResult is the structured outcome of a resolution. Success holds
// exactly when there are no missing dependencies and no conflicts.
type ResolutionResult struct {
	Success      bool                 `json:"success"`
	Resolved     []ResolvedDependency `json:"resolved"`
	Missing      []string             `json:"missing"`
	Conflicts    []DependencyConflict `json:"conflicts"`
	InstallOrder []string             `json:"install_order"`
	Warnings     []string             `json:"warnings"`
}

// DependencyNode is a node in the owned tree built by BuildDependencyTree,
// distinct from the flat Resolved list.
type DependencyNode struct {
	ID           string            `json:"id"`
	Version      string            `json:"version"`
	Dependencies []*DependencyNode `json:"dependencies"`
	Depth        int               `json:"depth"`
}

// UninstallCheck reports whether a plugin can be removed and which installed
// plugins block it.
type UninstallCheck struct {
	CanUninstall bool     `json:"can_uninstall"`
	BlockedBy    []string `json:"blocked_by"`
}

// PluginProvider resolves a plugin ID to its manifest, typically backed by a
// marketplace catalog or client. A nil manifest with a nil error means the
// plugin is unknown.
type PluginProvider interface {
	FetchManifest(ctx context.Context, id string) (*manifest.Manifest, error)
}

// VersionProvider lists the available versions for a plugin ID, used to retry
// an unsatisfying marketplace manifest against other published versions.
type VersionProvider interface {
	ListVersions(ctx context.Context, id string) ([]string, error)
}
