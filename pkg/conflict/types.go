package conflict

import (
	"github.com/inkwell/hostkit/pkg/manifest"
)

// ConflictType categorizes what two or more plugins are fighting over.
type ConflictType string

const (
	ConflictVersion    ConflictType = "version"
	ConflictNamespace  ConflictType = "namespace"
	ConflictCommand    ConflictType = "command"
	ConflictShortcut   ConflictType = "shortcut"
	ConflictCapability ConflictType = "capability"
	ConflictResource   ConflictType = "resource"
)

// Severity ranks how blocking a conflict is. Only error-level conflicts
// prevent activation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Action is the remediation proposed by an auto-resolution.
type Action string

const (
	ActionSkip      Action = "skip"
	ActionUpgrade   Action = "upgrade"
	ActionDowngrade Action = "downgrade"
	ActionRename    Action = "rename"
	ActionDisable   Action = "disable"
)

// PluginRegistration is the conflict-detection view of a plugin. The
// manifest is authoritative; the slice fields override the manifest's
// declarations when set, which lets a host register runtime surface
// (commands bound after activation, say) that the manifest does not list.
type PluginRegistration struct {
	Manifest   *manifest.Manifest `json:"manifest"`
	Commands   []string           `json:"commands,omitempty"`
	Shortcuts  []string           `json:"shortcuts,omitempty"`
	Namespaces []string           `json:"namespaces,omitempty"`
	Resources  []string           `json:"resources,omitempty"`
}

// ID returns the registered plugin's identifier.
func (r *PluginRegistration) ID() string {
	if r.Manifest == nil {
		return ""
	}
	return r.Manifest.ID
}

func (r *PluginRegistration) commands() []string {
	if len(r.Commands) > 0 {
		return r.Commands
	}
	if r.Manifest != nil {
		return r.Manifest.Commands
	}
	return nil
}

func (r *PluginRegistration) shortcuts() []string {
	if len(r.Shortcuts) > 0 {
		return r.Shortcuts
	}
	if r.Manifest != nil {
		return r.Manifest.Shortcuts
	}
	return nil
}

// namespaces defaults to the plugin's own id when nothing is declared,
// so every plugin implicitly owns a namespace named after itself.
func (r *PluginRegistration) namespaces() []string {
	if len(r.Namespaces) > 0 {
		return r.Namespaces
	}
	if r.Manifest != nil && len(r.Manifest.Namespaces) > 0 {
		return r.Manifest.Namespaces
	}
	if id := r.ID(); id != "" {
		return []string{id}
	}
	return nil
}

func (r *PluginRegistration) resources() []string {
	if len(r.Resources) > 0 {
		return r.Resources
	}
	if r.Manifest != nil {
		return r.Manifest.Resources
	}
	return nil
}

func (r *PluginRegistration) capabilities() []string {
	if r.Manifest != nil {
		return r.Manifest.Capabilities
	}
	return nil
}

// PluginConflict describes one contested claim between two or more plugins.
type PluginConflict struct {
	Type           ConflictType `json:"type"`
	Severity       Severity     `json:"severity"`
	Plugins        []string     `json:"plugins"`
	Description    string       `json:"description"`
	Resolution     string       `json:"resolution,omitempty"`
	AutoResolvable bool         `json:"autoResolvable"`
}

// ConflictResolution is a concrete remediation derived from an
// auto-resolvable conflict.
type ConflictResolution struct {
	Conflict     PluginConflict `json:"conflict"`
	Action       Action         `json:"action"`
	TargetPlugin string         `json:"targetPlugin,omitempty"`
	Details      string         `json:"details"`
}

// ConflictDetectionResult aggregates one detection pass, split by severity.
// CanProceed is false exactly when at least one error-level conflict exists.
type ConflictDetectionResult struct {
	HasConflicts    bool                 `json:"hasConflicts"`
	Errors          []PluginConflict     `json:"errors"`
	Warnings        []PluginConflict     `json:"warnings"`
	Info            []PluginConflict     `json:"info"`
	CanProceed      bool                 `json:"canProceed"`
	AutoResolutions []ConflictResolution `json:"autoResolutions"`
}
