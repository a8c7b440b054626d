package resolver

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/hostkit/pkg/manifest"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type stubPluginProvider struct {
	manifests map[string]*manifest.Manifest
	err       error
	calls     int
}

func (s *stubPluginProvider) FetchManifest(_ context.Context, id string) (*manifest.Manifest, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.manifests[id], nil
}

type stubVersionProvider struct {
	versions map[string][]string
	calls    int
}

func (s *stubVersionProvider) ListVersions(_ context.Context, id string) ([]string, error) {
	s.calls++
	return s.versions[id], nil
}

func installedManifest(id, ver string, deps map[string]string) *manifest.Manifest {
	return &manifest.Manifest{ID: id, Version: ver, Dependencies: deps}
}

func newTestResolver(opts Options) *Resolver {
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return New(opts)
}

func TestResolveInstalledChain(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"editor-core": installedManifest("editor-core", "1.0.0", nil),
		"markdown":    installedManifest("markdown", "1.2.0", map[string]string{"editor-core": "^1.0.0"}),
		"preview":     installedManifest("preview", "0.9.0", map[string]string{"markdown": "~1.2.0"}),
	})

	result, err := r.Resolve(context.Background(), "preview", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Missing)
	assert.Empty(t, result.Conflicts)
	assert.Len(t, result.Resolved, 3)

	for _, dep := range result.Resolved {
		assert.Equal(t, SourceInstalled, dep.Source)
		assert.True(t, dep.Satisfies, "expected %s to satisfy its constraint", dep.ID)
	}

	// Dependencies must precede dependents in the install order.
	pos := make(map[string]int)
	for i, id := range result.InstallOrder {
		pos[id] = i
	}
	assert.Less(t, pos["editor-core"], pos["markdown"])
	assert.Less(t, pos["markdown"], pos["preview"])
}

func TestResolveCircularDependency(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"a": installedManifest("a", "1.0.0", map[string]string{"b": "*"}),
		"b": installedManifest("b", "1.0.0", map[string]string{"a": "*"}),
	})

	result, err := r.Resolve(context.Background(), "a", "")
	require.NoError(t, err)

	// Cycles degrade to a warning, never an error or an infinite loop.
	assert.True(t, result.Success)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "Circular dependency detected")
	assert.Contains(t, result.Warnings[0], "a")
	assert.Contains(t, result.Warnings[0], "b")
}

func TestResolveMissingDependency(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"host": installedManifest("host", "1.0.0", map[string]string{"ghost": "^2.0.0"}),
	})

	result, err := r.Resolve(context.Background(), "host", "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"ghost"}, result.Missing)

	var ghost *ResolvedDependency
	for i := range result.Resolved {
		if result.Resolved[i].ID == "ghost" {
			ghost = &result.Resolved[i]
		}
	}
	require.NotNil(t, ghost)
	assert.Equal(t, SourceMissing, ghost.Source)
	assert.False(t, ghost.Satisfies)
}

func TestResolveVersionConflict(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"app": installedManifest("app", "1.0.0", map[string]string{"lib": "^1.0.0"}),
		"lib": installedManifest("lib", "2.0.0", nil),
	})

	result, err := r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.Conflicts, 1)

	conflict := result.Conflicts[0]
	assert.Equal(t, "lib", conflict.DependencyID)
	require.Len(t, conflict.RequiredBy, 1)
	assert.Equal(t, "app", conflict.RequiredBy[0].PluginID)
	assert.Equal(t, "^1.0.0", conflict.RequiredBy[0].Constraint)
}

func TestResolveRootConflictNamesRoot(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"app": installedManifest("app", "1.0.0", nil),
	})

	result, err := r.Resolve(context.Background(), "app", "2.0.0")
	require.NoError(t, err)

	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "root", result.Conflicts[0].RequiredBy[0].PluginID)
}

func TestResolveFromMarketplace(t *testing.T) {
	plugins := &stubPluginProvider{manifests: map[string]*manifest.Manifest{
		"spellcheck": {ID: "spellcheck", Version: "1.3.0"},
	}}

	r := newTestResolver(Options{PluginProvider: plugins})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"writer": installedManifest("writer", "1.0.0", map[string]string{"spellcheck": "^1.0.0"}),
	})

	result, err := r.Resolve(context.Background(), "writer", "")
	require.NoError(t, err)

	assert.True(t, result.Success)

	var spellcheck *ResolvedDependency
	for i := range result.Resolved {
		if result.Resolved[i].ID == "spellcheck" {
			spellcheck = &result.Resolved[i]
		}
	}
	require.NotNil(t, spellcheck)
	assert.Equal(t, SourceMarketplace, spellcheck.Source)
	assert.Equal(t, "1.3.0", spellcheck.Version)
	assert.True(t, spellcheck.Satisfies)
}

func TestResolveMarketplaceVersionRetry(t *testing.T) {
	plugins := &stubPluginProvider{manifests: map[string]*manifest.Manifest{
		"themer": {ID: "themer", Version: "2.0.0"},
	}}
	versions := &stubVersionProvider{versions: map[string][]string{
		"themer": {"2.0.0", "1.4.0", "1.0.0"},
	}}

	r := newTestResolver(Options{PluginProvider: plugins, VersionProvider: versions})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"shell": installedManifest("shell", "1.0.0", map[string]string{"themer": "^1.0.0"}),
	})

	result, err := r.Resolve(context.Background(), "shell", "")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, versions.calls)

	var themer *ResolvedDependency
	for i := range result.Resolved {
		if result.Resolved[i].ID == "themer" {
			themer = &result.Resolved[i]
		}
	}
	require.NotNil(t, themer)
	// The first satisfying version from the list is substituted in place.
	assert.Equal(t, "1.4.0", themer.Version)
	assert.True(t, themer.Satisfies)
	assert.Equal(t, SourceMarketplace, themer.Source)
}

func TestResolveProviderErrorDegrades(t *testing.T) {
	plugins := &stubPluginProvider{err: errors.New("marketplace unreachable")}

	r := newTestResolver(Options{PluginProvider: plugins})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"app": installedManifest("app", "1.0.0", map[string]string{"remote": "*"}),
	})

	result, err := r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Contains(t, result.Missing, "remote")

	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "remote") && strings.Contains(w, "failed") {
			found = true
		}
	}
	assert.True(t, found, "expected a provider warning, got %v", result.Warnings)
}

type blockingPluginProvider struct{}

func (blockingPluginProvider) FetchManifest(ctx context.Context, _ string) (*manifest.Manifest, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveStalledProviderTimesOut(t *testing.T) {
	r := newTestResolver(Options{
		PluginProvider:  blockingPluginProvider{},
		ProviderTimeout: 20 * time.Millisecond,
	})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"app": installedManifest("app", "1.0.0", map[string]string{"slow": "*"}),
	})

	// A stalled provider degrades that lookup instead of hanging the call.
	result, err := r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)
	assert.Contains(t, result.Missing, "slow")
	assert.NotEmpty(t, result.Warnings)
}

func TestResolveCancellation(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"app": installedManifest("app", "1.0.0", nil),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, "app", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveOptionalDependencyMissing(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"app": {
			ID:                   "app",
			Version:              "1.0.0",
			OptionalDependencies: map[string]string{"extras": "*"},
		},
	})

	result, err := r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)

	// A missing optional dependency is a warning, never a blocker.
	assert.True(t, result.Success)
	assert.Empty(t, result.Missing)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "extras")
}

func TestResolveCachesUntilMutation(t *testing.T) {
	plugins := &stubPluginProvider{manifests: map[string]*manifest.Manifest{
		"remote": {ID: "remote", Version: "1.0.0"},
	}}

	r := newTestResolver(Options{PluginProvider: plugins})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"app": installedManifest("app", "1.0.0", map[string]string{"remote": "*"}),
	})

	_, err := r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)
	assert.Equal(t, 1, plugins.calls, "second resolve should be served from cache")

	r.AddInstalledPlugin(installedManifest("other", "1.0.0", nil))

	_, err = r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)
	assert.Equal(t, 2, plugins.calls, "mutation must invalidate the cache")
}

func TestClearCache(t *testing.T) {
	plugins := &stubPluginProvider{manifests: map[string]*manifest.Manifest{
		"remote": {ID: "remote", Version: "1.0.0"},
	}}

	r := newTestResolver(Options{PluginProvider: plugins})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"app": installedManifest("app", "1.0.0", map[string]string{"remote": "*"}),
	})

	_, err := r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)

	r.ClearCache()

	_, err = r.Resolve(context.Background(), "app", "")
	require.NoError(t, err)
	assert.Equal(t, 2, plugins.calls)
}

func TestBuildDependencyTree(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"root":   installedManifest("root", "1.0.0", map[string]string{"left": "*", "right": "*"}),
		"left":   installedManifest("left", "1.0.0", map[string]string{"shared": "*"}),
		"right":  installedManifest("right", "1.0.0", map[string]string{"shared": "*"}),
		"shared": installedManifest("shared", "1.0.0", map[string]string{"base": "*"}),
		"base":   installedManifest("base", "1.0.0", nil),
	})

	tree := r.BuildDependencyTree("root", 0)
	require.NotNil(t, tree)
	assert.Equal(t, "root", tree.ID)
	assert.Equal(t, 0, tree.Depth)
	require.Len(t, tree.Dependencies, 2)

	// The first visit to the shared node expands its children; the second
	// appears as a childless leaf.
	first := tree.Dependencies[0].Dependencies[0]
	second := tree.Dependencies[1].Dependencies[0]
	assert.Equal(t, "shared", first.ID)
	assert.Equal(t, "shared", second.ID)
	assert.Len(t, first.Dependencies, 1)
	assert.Empty(t, second.Dependencies)
}

func TestBuildDependencyTreeMaxDepth(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"a": installedManifest("a", "1.0.0", map[string]string{"b": "*"}),
		"b": installedManifest("b", "1.0.0", map[string]string{"c": "*"}),
		"c": installedManifest("c", "1.0.0", map[string]string{"d": "*"}),
		"d": installedManifest("d", "1.0.0", nil),
	})

	tree := r.BuildDependencyTree("a", 2)
	require.NotNil(t, tree)

	b := tree.Dependencies[0]
	require.Len(t, b.Dependencies, 1)
	c := b.Dependencies[0]
	assert.Empty(t, c.Dependencies, "nodes past maxDepth must be pruned")
}

func TestBuildDependencyTreeUnknownPlugin(t *testing.T) {
	r := newTestResolver(Options{})
	assert.Nil(t, r.BuildDependencyTree("nope", 0))
}

func TestGetDependentsAndCanUninstall(t *testing.T) {
	r := newTestResolver(Options{})
	r.SetInstalledPlugins(map[string]*manifest.Manifest{
		"core":  installedManifest("core", "1.0.0", nil),
		"alpha": installedManifest("alpha", "1.0.0", map[string]string{"core": "^1.0.0"}),
		"beta":  installedManifest("beta", "1.0.0", map[string]string{"core": "*"}),
		"gamma": installedManifest("gamma", "1.0.0", nil),
	})

	assert.Equal(t, []string{"alpha", "beta"}, r.GetDependents("core"))

	check := r.CanUninstall("core")
	assert.False(t, check.CanUninstall)
	assert.Equal(t, []string{"alpha", "beta"}, check.BlockedBy)

	check = r.CanUninstall("gamma")
	assert.True(t, check.CanUninstall)
	assert.Empty(t, check.BlockedBy)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "a@latest", cacheKey("a", ""))
	assert.Equal(t, "a@1.2.0", cacheKey("a", "1.2.0"))
}
