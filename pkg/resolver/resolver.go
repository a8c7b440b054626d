// Package resolver walks a plugin's transitive dependency graph against
// installed state and injected marketplace providers, producing structured
// resolution reports and dependency-respecting install orders.
//
// The resolver never throws for data-shape problems: cycles, missing
// dependencies, and unsatisfied constraints all degrade to entries in the
// result, and callers decide policy from there.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/inkwell/hostkit/pkg/manifest"
	"github.com/inkwell/hostkit/pkg/observability"
	"github.com/inkwell/hostkit/pkg/version"
)

const (
	// DefaultProviderTimeout bounds a single marketplace lookup so a stalled
	// provider cannot stall the whole resolution.
	DefaultProviderTimeout = 10 * time.Second

	// DefaultMaxTreeDepth bounds BuildDependencyTree.
	DefaultMaxTreeDepth = 10
)

// Options configures a Resolver. All fields are optional.
type Options struct {
	Logger          *logrus.Logger
	Cache           ResultCache
	Metrics         *observability.Metrics
	PluginProvider  PluginProvider
	VersionProvider VersionProvider
	ProviderTimeout time.Duration
}

// Resolver owns the in-memory installed-plugin map and the resolution cache.
// Construct one per installer session; there are no package-level singletons.
type Resolver struct {
	mu        sync.RWMutex
	installed map[string]*manifest.Manifest

	plugins  PluginProvider
	versions VersionProvider

	cache           ResultCache
	group           singleflight.Group
	log             *logrus.Logger
	metrics         *observability.Metrics
	providerTimeout time.Duration
}

// New creates a resolver with the given options.
func New(opts Options) *Resolver {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache(0, 0)
	}
	timeout := opts.ProviderTimeout
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}

	return &Resolver{
		installed:       make(map[string]*manifest.Manifest),
		plugins:         opts.PluginProvider,
		versions:        opts.VersionProvider,
		cache:           cache,
		log:             log,
		metrics:         opts.Metrics,
		providerTimeout: timeout,
	}
}

// SetInstalledPlugins replaces the installed-plugin map wholesale and
// invalidates the resolution cache.
func (r *Resolver) SetInstalledPlugins(plugins map[string]*manifest.Manifest) {
	r.mu.Lock()
	r.installed = make(map[string]*manifest.Manifest, len(plugins))
	for id, m := range plugins {
		r.installed[id] = m
	}
	count := len(r.installed)
	r.mu.Unlock()

	r.invalidate(count)
}

// AddInstalledPlugin records a newly installed plugin and invalidates the
// resolution cache.
func (r *Resolver) AddInstalledPlugin(m *manifest.Manifest) {
	r.mu.Lock()
	r.installed[m.ID] = m
	count := len(r.installed)
	r.mu.Unlock()

	r.invalidate(count)
}

// RemoveInstalledPlugin forgets an installed plugin and invalidates the
// resolution cache.
func (r *Resolver) RemoveInstalledPlugin(id string) {
	r.mu.Lock()
	delete(r.installed, id)
	count := len(r.installed)
	r.mu.Unlock()

	r.invalidate(count)
}

// InstalledPlugin returns the manifest of an installed plugin.
func (r *Resolver) InstalledPlugin(id string) (*manifest.Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.installed[id]
	return m, ok
}

// InstalledIDs returns the sorted IDs of all installed plugins.
func (r *Resolver) InstalledIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.installed))
	for id := range r.installed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClearCache explicitly drops every cached resolution result.
func (r *Resolver) ClearCache() {
	r.cache.Purge(context.Background())
}

func (r *Resolver) invalidate(installedCount int) {
	r.cache.Purge(context.Background())
	if r.metrics != nil {
		r.metrics.InstalledPlugins.Set(float64(installedCount))
	}
}

func cacheKey(pluginID, targetVersion string) string {
	if targetVersion == "" {
		targetVersion = "latest"
	}
	return pluginID + "@" + targetVersion
}

// Resolve computes a ResolutionResult for pluginID. targetVersion may be
// empty, in which case whatever version is found is accepted for the root.
// Results are cached until the installed-plugin set changes; concurrent
// resolutions of the same key are collapsed into one.
func (r *Resolver) Resolve(ctx context.Context, pluginID, targetVersion string) (*ResolutionResult, error) {
	key := cacheKey(pluginID, targetVersion)

	if result, ok := r.cache.Get(ctx, key); ok {
		if r.metrics != nil {
			r.metrics.CacheHitsTotal.WithLabelValues(r.cache.Type()).Inc()
		}
		return result, nil
	}
	if r.metrics != nil {
		r.metrics.CacheMissesTotal.WithLabelValues(r.cache.Type()).Inc()
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		return r.resolveUncached(ctx, pluginID, targetVersion, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ResolutionResult), nil
}

func (r *Resolver) resolveUncached(ctx context.Context, pluginID, targetVersion, key string) (*ResolutionResult, error) {
	start := time.Now()

	st := &resolution{
		resolver:  r,
		installed: r.snapshot(),
		visited:   make(map[string]bool),
		visiting:  make(map[string]bool),
	}

	if err := st.resolveNode(ctx, pluginID, targetVersion, false); err != nil {
		if r.metrics != nil {
			r.metrics.ResolutionsTotal.WithLabelValues("aborted").Inc()
		}
		return nil, err
	}

	result := &ResolutionResult{
		Resolved:     st.resolved,
		Missing:      st.missing,
		Conflicts:    st.conflicts,
		Warnings:     st.warnings,
		InstallOrder: InstallOrder(st.resolved, st.installed),
	}
	result.Success = len(result.Missing) == 0 && len(result.Conflicts) == 0
	if result.Resolved == nil {
		result.Resolved = []ResolvedDependency{}
	}
	if result.Missing == nil {
		result.Missing = []string{}
	}
	if result.Conflicts == nil {
		result.Conflicts = []DependencyConflict{}
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}

	r.cache.Set(ctx, key, result)

	if r.metrics != nil {
		status := "failure"
		if result.Success {
			status = "success"
		}
		r.metrics.ResolutionsTotal.WithLabelValues(status).Inc()
		r.metrics.ResolutionDuration.Observe(time.Since(start).Seconds())
	}

	r.log.WithFields(logrus.Fields{
		"plugin":    pluginID,
		"success":   result.Success,
		"resolved":  len(result.Resolved),
		"missing":   len(result.Missing),
		"conflicts": len(result.Conflicts),
	}).Debug("dependency resolution complete")

	return result, nil
}

// snapshot copies the installed map so an in-flight resolution observes a
// consistent view. A mutation racing a resolution may still return a stale
// cached result; that is an accepted limitation.
func (r *Resolver) snapshot() map[string]*manifest.Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*manifest.Manifest, len(r.installed))
	for id, m := range r.installed {
		out[id] = m
	}
	return out
}

// resolution is the per-call traversal state.
type resolution struct {
	resolver  *Resolver
	installed map[string]*manifest.Manifest

	resolved  []ResolvedDependency
	missing   []string
	conflicts []DependencyConflict
	warnings  []string

	visited  map[string]bool
	visiting map[string]bool
	path     []string
}

// parent names the immediate requester of the node currently on top of the
// traversal path.
func (st *resolution) parent() string {
	if len(st.path) >= 2 {
		return st.path[len(st.path)-2]
	}
	return "root"
}

func (st *resolution) resolveNode(ctx context.Context, id, constraint string, optional bool) error {
	if st.visited[id] {
		return nil
	}
	if st.visiting[id] {
		cycle := append(append([]string{}, st.path...), id)
		st.warnings = append(st.warnings,
			fmt.Sprintf("Circular dependency detected: %s", strings.Join(cycle, " -> ")))
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	st.visiting[id] = true
	st.path = append(st.path, id)
	defer func() {
		delete(st.visiting, id)
		st.visited[id] = true
		st.path = st.path[:len(st.path)-1]
	}()

	if installed, ok := st.installed[id]; ok {
		satisfies := constraint == "" || version.SatisfiesString(installed.Version, constraint)
		st.resolved = append(st.resolved, ResolvedDependency{
			ID:         id,
			Version:    installed.Version,
			Constraint: constraint,
			Satisfies:  satisfies,
			Source:     SourceInstalled,
		})

		if !satisfies {
			st.conflicts = append(st.conflicts, DependencyConflict{
				DependencyID: id,
				RequiredBy:   []Requester{{PluginID: st.parent(), Constraint: constraint}},
				Reason:       fmt.Sprintf("Installed version %s does not satisfy constraint %s", installed.Version, constraint),
			})
		}

		return st.resolveDependencies(ctx, installed)
	}

	if st.resolver.plugins != nil {
		found, err := st.fetchManifest(ctx, id)
		if err != nil {
			return err
		}
		if found != nil {
			satisfies := constraint == "" || version.SatisfiesString(found.Version, constraint)
			idx := len(st.resolved)
			st.resolved = append(st.resolved, ResolvedDependency{
				ID:         id,
				Version:    found.Version,
				Constraint: constraint,
				Satisfies:  satisfies,
				Source:     SourceMarketplace,
			})

			// The latest published manifest may not satisfy the requester;
			// retry against the full version list before giving up.
			if !satisfies && st.resolver.versions != nil {
				available, err := st.listVersions(ctx, id)
				if err != nil {
					return err
				}
				for _, candidate := range available {
					if version.SatisfiesString(candidate, constraint) {
						st.resolved[idx].Version = candidate
						st.resolved[idx].Satisfies = true
						break
					}
				}
			}

			return st.resolveDependencies(ctx, found)
		}
	}

	st.markMissing(id, constraint, optional)
	return nil
}

func (st *resolution) markMissing(id, constraint string, optional bool) {
	st.resolved = append(st.resolved, ResolvedDependency{
		ID:         id,
		Constraint: constraint,
		Satisfies:  false,
		Source:     SourceMissing,
	})

	if optional {
		st.warnings = append(st.warnings, fmt.Sprintf("Optional dependency %s not found", id))
		return
	}
	st.missing = append(st.missing, id)
}

func (st *resolution) resolveDependencies(ctx context.Context, m *manifest.Manifest) error {
	for _, depID := range sortedKeys(m.Dependencies) {
		if err := st.resolveNode(ctx, depID, m.Dependencies[depID], false); err != nil {
			return err
		}
	}
	for _, depID := range sortedKeys(m.OptionalDependencies) {
		if err := st.resolveNode(ctx, depID, m.OptionalDependencies[depID], true); err != nil {
			return err
		}
	}
	return nil
}

// fetchManifest queries the plugin provider under the configured timeout.
// Provider failures degrade to "not found" with a warning; only cancellation
// of the resolution's own context aborts the walk.
func (st *resolution) fetchManifest(ctx context.Context, id string) (*manifest.Manifest, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, st.resolver.providerTimeout)
	defer cancel()

	m, err := st.resolver.plugins.FetchManifest(fetchCtx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		st.resolver.log.WithError(err).WithField("plugin", id).Warn("plugin provider lookup failed")
		st.warnings = append(st.warnings, fmt.Sprintf("Provider lookup for %s failed: %v", id, err))
		st.countLookup("plugin", "error")
		return nil, nil
	}

	if m == nil {
		st.countLookup("plugin", "not_found")
	} else {
		st.countLookup("plugin", "found")
	}
	return m, nil
}

func (st *resolution) listVersions(ctx context.Context, id string) ([]string, error) {
	listCtx, cancel := context.WithTimeout(ctx, st.resolver.providerTimeout)
	defer cancel()

	versions, err := st.resolver.versions.ListVersions(listCtx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		st.resolver.log.WithError(err).WithField("plugin", id).Warn("version provider lookup failed")
		st.warnings = append(st.warnings, fmt.Sprintf("Version lookup for %s failed: %v", id, err))
		st.countLookup("version", "error")
		return nil, nil
	}

	st.countLookup("version", "found")
	return versions, nil
}

func (st *resolution) countLookup(provider, outcome string) {
	if st.resolver.metrics != nil {
		st.resolver.metrics.ProviderLookups.WithLabelValues(provider, outcome).Inc()
	}
}

// BuildDependencyTree builds an explicit dependency tree for an installed
// plugin, strictly from the installed-plugin map (providers are never
// consulted). maxDepth <= 0 selects DefaultMaxTreeDepth. An ID already seen
// anywhere in the build re-appears as a childless leaf, so diamond
// dependencies terminate instead of recursing.
func (r *Resolver) BuildDependencyTree(pluginID string, maxDepth int) *DependencyNode {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxTreeDepth
	}

	installed := r.snapshot()
	visited := make(map[string]bool)

	var build func(id string, depth int) *DependencyNode
	build = func(id string, depth int) *DependencyNode {
		if depth > maxDepth {
			return nil
		}

		m, ok := installed[id]
		if !ok {
			return nil
		}

		node := &DependencyNode{
			ID:           id,
			Version:      m.Version,
			Depth:        depth,
			Dependencies: []*DependencyNode{},
		}

		if visited[id] {
			return node
		}
		visited[id] = true

		for _, depID := range sortedKeys(m.Dependencies) {
			if child := build(depID, depth+1); child != nil {
				node.Dependencies = append(node.Dependencies, child)
			}
		}
		return node
	}

	return build(pluginID, 0)
}

// GetDependents returns the sorted IDs of installed plugins whose manifest
// declares a dependency on pluginID.
func (r *Resolver) GetDependents(pluginID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dependents := make([]string, 0)
	for id, m := range r.installed {
		if _, ok := m.Dependencies[pluginID]; ok {
			dependents = append(dependents, id)
		}
	}
	sort.Strings(dependents)
	return dependents
}

// CanUninstall reports whether pluginID can be removed without breaking any
// installed dependent.
func (r *Resolver) CanUninstall(pluginID string) UninstallCheck {
	blockedBy := r.GetDependents(pluginID)
	return UninstallCheck{
		CanUninstall: len(blockedBy) == 0,
		BlockedBy:    blockedBy,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
