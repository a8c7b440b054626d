package conflict

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inkwell/hostkit/pkg/observability"
	"github.com/inkwell/hostkit/pkg/version"
)

// ExclusiveCapabilities lists capabilities only one active plugin may
// provide at a time.
var ExclusiveCapabilities = []string{"themes"}

// Detector checks a set of plugin registrations for contested claims.
// It keeps no cache; every detection pass recomputes from the current
// registrations.
type Detector struct {
	mu            sync.RWMutex
	registrations map[string]*PluginRegistration
	log           *logrus.Logger
	metrics       *observability.Metrics
}

// Options configures a Detector.
type Options struct {
	Logger  *logrus.Logger
	Metrics *observability.Metrics
}

// NewDetector creates an empty detector.
func NewDetector(opts Options) *Detector {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Detector{
		registrations: make(map[string]*PluginRegistration),
		log:           log,
		metrics:       opts.Metrics,
	}
}

// SetPlugins replaces all registrations wholesale.
func (d *Detector) SetPlugins(regs []*PluginRegistration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registrations = make(map[string]*PluginRegistration, len(regs))
	for _, reg := range regs {
		if reg == nil || reg.ID() == "" {
			continue
		}
		d.registrations[reg.ID()] = reg
	}
}

// RegisterPlugin adds or replaces a single registration.
func (d *Detector) RegisterPlugin(reg *PluginRegistration) {
	if reg == nil || reg.ID() == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registrations[reg.ID()] = reg
}

// UnregisterPlugin removes a registration. Unknown ids are a no-op.
func (d *Detector) UnregisterPlugin(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.registrations, id)
}

// Registration returns the current registration for id, or nil.
func (d *Detector) Registration(id string) *PluginRegistration {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.registrations[id]
}

// DetectAll runs every detector over the full registration set.
func (d *Detector) DetectAll() *ConflictDetectionResult {
	d.mu.RLock()
	regs := d.sortedRegistrations()
	d.mu.RUnlock()

	var conflicts []PluginConflict
	conflicts = append(conflicts, d.detectVersionConflicts(regs)...)
	conflicts = append(conflicts, d.detectNamespaceConflicts(regs)...)
	conflicts = append(conflicts, d.detectCommandConflicts(regs)...)
	conflicts = append(conflicts, d.detectShortcutConflicts(regs)...)
	conflicts = append(conflicts, d.detectCapabilityConflicts(regs)...)
	conflicts = append(conflicts, d.detectResourceConflicts(regs)...)

	result := d.buildResult(conflicts)

	if result.HasConflicts {
		d.log.WithFields(logrus.Fields{
			"errors":   len(result.Errors),
			"warnings": len(result.Warnings),
			"info":     len(result.Info),
		}).Debug("plugin conflicts detected")
	}

	return result
}

// DetectForPlugin checks the named plugin pairwise against every other
// registration. Only command and shortcut collisions are evaluated here;
// namespace, version, capability and resource claims only make sense over
// the full set and are left to DetectAll.
func (d *Detector) DetectForPlugin(id string) *ConflictDetectionResult {
	d.mu.RLock()
	subject := d.registrations[id]
	regs := d.sortedRegistrations()
	d.mu.RUnlock()

	var conflicts []PluginConflict
	if subject != nil {
		for _, other := range regs {
			if other.ID() == id {
				continue
			}
			conflicts = append(conflicts, d.detectCommandConflicts([]*PluginRegistration{subject, other})...)
			conflicts = append(conflicts, d.detectShortcutConflicts([]*PluginRegistration{subject, other})...)
		}
	}
	return d.buildResult(conflicts)
}

func (d *Detector) buildResult(conflicts []PluginConflict) *ConflictDetectionResult {
	result := &ConflictDetectionResult{
		HasConflicts:    len(conflicts) > 0,
		Errors:          []PluginConflict{},
		Warnings:        []PluginConflict{},
		Info:            []PluginConflict{},
		AutoResolutions: []ConflictResolution{},
	}

	for _, c := range conflicts {
		switch c.Severity {
		case SeverityError:
			result.Errors = append(result.Errors, c)
		case SeverityWarning:
			result.Warnings = append(result.Warnings, c)
		case SeverityInfo:
			result.Info = append(result.Info, c)
		}
		if d.metrics != nil {
			d.metrics.ConflictsDetectedTotal.WithLabelValues(string(c.Type), string(c.Severity)).Inc()
		}
		if c.AutoResolvable {
			result.AutoResolutions = append(result.AutoResolutions, autoResolve(c)...)
		}
	}

	result.CanProceed = len(result.Errors) == 0
	return result
}

// autoResolve maps an auto-resolvable conflict to concrete remediations.
// Commands resolve by letting the last registration win; exclusive
// capabilities resolve by disabling every provider after the first.
func autoResolve(c PluginConflict) []ConflictResolution {
	switch c.Type {
	case ConflictCommand:
		return []ConflictResolution{{
			Conflict: c,
			Action:   ActionSkip,
			Details:  "Duplicate command registrations are skipped; the last registration wins",
		}}
	case ConflictCapability:
		resolutions := make([]ConflictResolution, 0, len(c.Plugins)-1)
		for _, id := range c.Plugins[1:] {
			resolutions = append(resolutions, ConflictResolution{
				Conflict:     c,
				Action:       ActionDisable,
				TargetPlugin: id,
				Details:      fmt.Sprintf("Disable %s; %s already provides this capability", id, c.Plugins[0]),
			})
		}
		return resolutions
	}
	return nil
}

type requirement struct {
	pluginID   string
	constraint string
}

func (d *Detector) detectVersionConflicts(regs []*PluginRegistration) []PluginConflict {
	requirements := make(map[string][]requirement)
	for _, reg := range regs {
		if reg.Manifest == nil {
			continue
		}
		for _, depID := range sortedKeys(reg.Manifest.Dependencies) {
			requirements[depID] = append(requirements[depID], requirement{
				pluginID:   reg.ID(),
				constraint: reg.Manifest.Dependencies[depID],
			})
		}
	}

	installed := make(map[string]string, len(regs))
	for _, reg := range regs {
		if reg.Manifest != nil {
			installed[reg.ID()] = reg.Manifest.Version
		}
	}

	var conflicts []PluginConflict
	for _, depID := range sortedKeys(requirements) {
		reqs := requirements[depID]
		if len(reqs) < 2 {
			continue
		}

		if installedVersion, ok := installed[depID]; ok {
			var unsatisfied []requirement
			for _, req := range reqs {
				if !version.SatisfiesString(installedVersion, req.constraint) {
					unsatisfied = append(unsatisfied, req)
				}
			}
			if len(unsatisfied) > 0 {
				plugins := []string{depID}
				var wants []string
				for _, req := range unsatisfied {
					plugins = append(plugins, req.pluginID)
					wants = append(wants, fmt.Sprintf("%s wants %s", req.pluginID, req.constraint))
				}
				conflicts = append(conflicts, PluginConflict{
					Type:     ConflictVersion,
					Severity: SeverityError,
					Plugins:  plugins,
					Description: fmt.Sprintf("Installed version %s of %s does not satisfy all requirements: %s",
						installedVersion, depID, strings.Join(wants, ", ")),
					Resolution: fmt.Sprintf("Upgrade or downgrade %s to a version all dependents accept", depID),
				})
			}
		}

		// Coarse pairwise check: mismatched leading major digits in two
		// constraint strings usually mean disjoint ranges.
		for i := 0; i < len(reqs); i++ {
			for j := i + 1; j < len(reqs); j++ {
				a, b := firstDigitRun(reqs[i].constraint), firstDigitRun(reqs[j].constraint)
				if a != "" && b != "" && a != b {
					conflicts = append(conflicts, PluginConflict{
						Type:     ConflictVersion,
						Severity: SeverityWarning,
						Plugins:  []string{reqs[i].pluginID, reqs[j].pluginID},
						Description: fmt.Sprintf("%s and %s require potentially incompatible versions of %s (%s vs %s)",
							reqs[i].pluginID, reqs[j].pluginID, depID, reqs[i].constraint, reqs[j].constraint),
						Resolution: fmt.Sprintf("Align the %s version constraints of both plugins", depID),
					})
				}
			}
		}
	}
	return conflicts
}

func (d *Detector) detectNamespaceConflicts(regs []*PluginRegistration) []PluginConflict {
	claims := claimants(regs, (*PluginRegistration).namespaces, nil)
	var conflicts []PluginConflict
	for _, ns := range sortedKeys(claims) {
		owners := claims[ns]
		if len(owners) < 2 {
			continue
		}
		conflicts = append(conflicts, PluginConflict{
			Type:        ConflictNamespace,
			Severity:    SeverityError,
			Plugins:     owners,
			Description: fmt.Sprintf("Namespace %q is claimed by multiple plugins: %s", ns, strings.Join(owners, ", ")),
			Resolution:  "Namespaces are exclusive; uninstall or reconfigure one of the plugins",
		})
	}
	return conflicts
}

func (d *Detector) detectCommandConflicts(regs []*PluginRegistration) []PluginConflict {
	claims := claimants(regs, (*PluginRegistration).commands, nil)
	var conflicts []PluginConflict
	for _, cmd := range sortedKeys(claims) {
		owners := claims[cmd]
		if len(owners) < 2 {
			continue
		}
		conflicts = append(conflicts, PluginConflict{
			Type:           ConflictCommand,
			Severity:       SeverityWarning,
			Plugins:        owners,
			Description:    fmt.Sprintf("Command %q is registered by multiple plugins: %s", cmd, strings.Join(owners, ", ")),
			Resolution:     "The last registration wins",
			AutoResolvable: true,
		})
	}
	return conflicts
}

func (d *Detector) detectShortcutConflicts(regs []*PluginRegistration) []PluginConflict {
	claims := claimants(regs, (*PluginRegistration).shortcuts, NormalizeShortcut)
	var conflicts []PluginConflict
	for _, key := range sortedKeys(claims) {
		owners := claims[key]
		if len(owners) < 2 {
			continue
		}
		conflicts = append(conflicts, PluginConflict{
			Type:        ConflictShortcut,
			Severity:    SeverityWarning,
			Plugins:     owners,
			Description: fmt.Sprintf("Shortcut %q is bound by multiple plugins: %s", key, strings.Join(owners, ", ")),
			Resolution:  "Rebind the shortcut in one of the plugins",
		})
	}
	return conflicts
}

func (d *Detector) detectCapabilityConflicts(regs []*PluginRegistration) []PluginConflict {
	exclusive := make(map[string]bool, len(ExclusiveCapabilities))
	for _, name := range ExclusiveCapabilities {
		exclusive[name] = true
	}

	claims := claimants(regs, (*PluginRegistration).capabilities, nil)
	var conflicts []PluginConflict
	for _, name := range sortedKeys(claims) {
		owners := claims[name]
		if !exclusive[name] || len(owners) < 2 {
			continue
		}
		conflicts = append(conflicts, PluginConflict{
			Type:           ConflictCapability,
			Severity:       SeverityInfo,
			Plugins:        owners,
			Description:    fmt.Sprintf("Capability %q is exclusive but provided by multiple plugins: %s", name, strings.Join(owners, ", ")),
			Resolution:     "The first provider wins; the rest are disabled",
			AutoResolvable: true,
		})
	}
	return conflicts
}

func (d *Detector) detectResourceConflicts(regs []*PluginRegistration) []PluginConflict {
	claims := claimants(regs, (*PluginRegistration).resources, nil)
	var conflicts []PluginConflict
	for _, res := range sortedKeys(claims) {
		owners := claims[res]
		if len(owners) < 2 {
			continue
		}
		conflicts = append(conflicts, PluginConflict{
			Type:        ConflictResource,
			Severity:    SeverityWarning,
			Plugins:     owners,
			Description: fmt.Sprintf("Resource %q is claimed by multiple plugins: %s", res, strings.Join(owners, ", ")),
			Resolution:  "Only one plugin should own a resource path",
		})
	}
	return conflicts
}

// claimants maps each claimed key to the ordered list of plugin ids
// claiming it. normalize, when non-nil, canonicalizes keys before grouping.
func claimants(regs []*PluginRegistration, claims func(*PluginRegistration) []string, normalize func(string) string) map[string][]string {
	out := make(map[string][]string)
	for _, reg := range regs {
		seen := make(map[string]bool)
		for _, key := range claims(reg) {
			if normalize != nil {
				key = normalize(key)
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out[key] = append(out[key], reg.ID())
		}
	}
	return out
}

// NormalizeShortcut canonicalizes a key chord so modifier order does not
// matter: Ctrl+Shift+S and Shift+Ctrl+S normalize identically.
func NormalizeShortcut(s string) string {
	parts := strings.Split(s, "+")
	for i, part := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(part))
	}
	sort.Strings(parts)
	return strings.Join(parts, "+")
}

func (d *Detector) sortedRegistrations() []*PluginRegistration {
	ids := make([]string, 0, len(d.registrations))
	for id := range d.registrations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	regs := make([]*PluginRegistration, 0, len(ids))
	for _, id := range ids {
		regs = append(regs, d.registrations[id])
	}
	return regs
}

func firstDigitRun(s string) string {
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
