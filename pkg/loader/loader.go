package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/inkwell/hostkit/pkg/conflict"
	"github.com/inkwell/hostkit/pkg/manifest"
	"github.com/inkwell/hostkit/pkg/observability"
	"github.com/inkwell/hostkit/pkg/resolver"
)

// debounceInterval coalesces bursts of filesystem events into one rescan.
const debounceInterval = 250 * time.Millisecond

// Loader discovers installed plugins on disk. Each plugin lives in its own
// subdirectory of a search directory and is identified by a plugin.yaml
// manifest. On every reload the loader pushes the discovered set into the
// resolver and the conflict detector.
type Loader struct {
	dirs     []string
	log      *logrus.Logger
	resolver *resolver.Resolver
	detector *conflict.Detector
	metrics  *observability.Metrics

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// Options configures a Loader.
type Options struct {
	Dirs     []string
	Logger   *logrus.Logger
	Resolver *resolver.Resolver
	Detector *conflict.Detector
	Metrics  *observability.Metrics
}

// New creates a loader over the given search directories.
func New(opts Options) *Loader {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Loader{
		dirs:     opts.Dirs,
		log:      log,
		resolver: opts.Resolver,
		detector: opts.Detector,
		metrics:  opts.Metrics,
	}
}

// Scan walks the search directories and returns every valid manifest found.
// Invalid manifests are skipped with a warning. When the same plugin id
// appears in more than one directory the first occurrence wins.
func (l *Loader) Scan() ([]*manifest.Manifest, error) {
	seen := make(map[string]string)
	var manifests []*manifest.Manifest

	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			l.log.WithField("dir", dir).Debug("plugin directory does not exist, skipping")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			pluginDir := filepath.Join(dir, entry.Name())
			if _, err := os.Stat(filepath.Join(pluginDir, manifest.ManifestFileName)); err != nil {
				continue
			}

			m, err := manifest.LoadFromDir(pluginDir)
			if err != nil {
				l.log.WithError(err).WithField("dir", pluginDir).Warn("failed to load plugin manifest")
				continue
			}
			if errs := manifest.Validate(m); len(errs) > 0 {
				l.log.WithFields(logrus.Fields{
					"dir":    pluginDir,
					"errors": errs,
				}).Warn("invalid plugin manifest, skipping")
				continue
			}

			if prev, ok := seen[m.ID]; ok {
				l.log.WithFields(logrus.Fields{
					"plugin":  m.ID,
					"kept":    prev,
					"ignored": pluginDir,
				}).Warn("duplicate plugin id, keeping first occurrence")
				continue
			}
			seen[m.ID] = pluginDir
			manifests = append(manifests, m)
		}
	}
	return manifests, nil
}

// Reload rescans the directories and applies the result to the resolver
// and the conflict detector.
func (l *Loader) Reload() error {
	manifests, err := l.Scan()
	if err != nil {
		return err
	}

	if l.resolver != nil {
		installed := make(map[string]*manifest.Manifest, len(manifests))
		for _, m := range manifests {
			installed[m.ID] = m
		}
		l.resolver.SetInstalledPlugins(installed)
	}

	if l.detector != nil {
		regs := make([]*conflict.PluginRegistration, 0, len(manifests))
		for _, m := range manifests {
			regs = append(regs, &conflict.PluginRegistration{Manifest: m})
		}
		l.detector.SetPlugins(regs)
	}

	if l.metrics != nil {
		l.metrics.InstalledPlugins.Set(float64(len(manifests)))
	}

	l.log.WithField("plugins", len(manifests)).Info("installed plugins reloaded")
	return nil
}

// Watch reloads on filesystem changes under the search directories until
// ctx is canceled. The initial reload happens before Watch returns, so
// callers observe a consistent state immediately.
func (l *Loader) Watch(ctx context.Context) error {
	if err := l.Reload(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	watched := 0
	for _, dir := range l.dirs {
		if err := watcher.Add(dir); err != nil {
			l.log.WithError(err).WithField("dir", dir).Warn("cannot watch plugin directory")
			continue
		}
		watched++
		// Manifest writes happen inside per-plugin subdirectories, which
		// fsnotify does not watch recursively.
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				_ = watcher.Add(filepath.Join(dir, entry.Name()))
			}
		}
	}
	if watched == 0 {
		watcher.Close()
		return fmt.Errorf("no plugin directory could be watched")
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.watchLoop(ctx, watcher)
	return nil
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	debounce := time.NewTimer(debounceInterval)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			debounce.Reset(debounceInterval)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.log.WithError(err).Warn("plugin directory watcher error")

		case <-debounce.C:
			if err := l.Reload(); err != nil {
				l.log.WithError(err).Warn("plugin rescan failed")
			}
		}
	}
}

// Close stops the watcher if one is running.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		return err
	}
	return nil
}
