package loader

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell/hostkit/pkg/conflict"
	"github.com/inkwell/hostkit/pkg/resolver"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func writePlugin(t *testing.T, dir, id, version, extra string) {
	t.Helper()
	pluginDir := filepath.Join(dir, id)
	require.NoError(t, os.MkdirAll(pluginDir, 0o755))
	content := "id: " + id + "\nversion: " + version + "\n" + extra
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "plugin.yaml"), []byte(content), 0o644))
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "markdown", "1.0.0", "")
	writePlugin(t, dir, "preview", "0.9.0", "dependencies:\n  markdown: ^1.0.0\n")

	// Directories without a manifest are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-plugin"), 0o755))

	l := New(Options{Dirs: []string{dir}, Logger: testLogger()})
	manifests, err := l.Scan()
	require.NoError(t, err)
	require.Len(t, manifests, 2)

	ids := []string{manifests[0].ID, manifests[1].ID}
	assert.ElementsMatch(t, []string{"markdown", "preview"}, ids)
}

func TestScanSkipsInvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "good", "1.0.0", "")
	writePlugin(t, dir, "bad", "", "") // missing version fails validation

	l := New(Options{Dirs: []string{dir}, Logger: testLogger()})
	manifests, err := l.Scan()
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "good", manifests[0].ID)
}

func TestScanMissingDirectory(t *testing.T) {
	l := New(Options{Dirs: []string{"/does/not/exist"}, Logger: testLogger()})
	manifests, err := l.Scan()
	require.NoError(t, err)
	assert.Empty(t, manifests)
}

func TestScanDuplicateIDFirstWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writePlugin(t, first, "markdown", "1.0.0", "")
	writePlugin(t, second, "markdown", "2.0.0", "")

	l := New(Options{Dirs: []string{first, second}, Logger: testLogger()})
	manifests, err := l.Scan()
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "1.0.0", manifests[0].Version)
}

func TestReloadAppliesToResolverAndDetector(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "markdown", "1.0.0", "")
	writePlugin(t, dir, "preview", "0.9.0", "dependencies:\n  markdown: ^1.0.0\n")

	r := resolver.New(resolver.Options{Logger: testLogger()})
	d := conflict.NewDetector(conflict.Options{Logger: testLogger()})

	l := New(Options{
		Dirs:     []string{dir},
		Logger:   testLogger(),
		Resolver: r,
		Detector: d,
	})
	require.NoError(t, l.Reload())

	assert.Equal(t, []string{"markdown", "preview"}, r.InstalledIDs())
	assert.NotNil(t, d.Registration("markdown"))
	assert.NotNil(t, d.Registration("preview"))
}

func TestWatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "markdown", "1.0.0", "")

	r := resolver.New(resolver.Options{Logger: testLogger()})
	l := New(Options{Dirs: []string{dir}, Logger: testLogger(), Resolver: r})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, l.Watch(ctx))
	defer l.Close()

	assert.Equal(t, []string{"markdown"}, r.InstalledIDs())

	writePlugin(t, dir, "spellcheck", "0.4.0", "")

	assert.Eventually(t, func() bool {
		return len(r.InstalledIDs()) == 2
	}, 5*time.Second, 50*time.Millisecond, "watcher should pick up the new plugin")
}
