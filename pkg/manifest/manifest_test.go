package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	err := os.WriteFile(filepath.Join(dir, ManifestFileName), []byte(content), 0644)
	require.NoError(t, err)
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
id: markdown-preview
name: Markdown Preview
version: 1.4.0
dependencies:
  markdown-core: "^1.0.0"
optional_dependencies:
  spellcheck: "*"
commands:
  - markdown.preview.open
shortcuts:
  - Ctrl+Shift+V
namespaces:
  - markdown-preview
capabilities:
  - themes
`)

	m, err := LoadFromDir(dir)
	require.NoError(t, err)

	assert.Equal(t, "markdown-preview", m.ID)
	assert.Equal(t, "1.4.0", m.Version)
	assert.Equal(t, "^1.0.0", m.Dependencies["markdown-core"])
	assert.Equal(t, "*", m.OptionalDependencies["spellcheck"])
	assert.Equal(t, []string{"markdown.preview.open"}, m.Commands)
	assert.Equal(t, []string{"Ctrl+Shift+V"}, m.Shortcuts)
	assert.Equal(t, []string{"themes"}, m.Capabilities)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromDir(t.TempDir())
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ManifestFileName)

	m := &Manifest{
		ID:      "vim-mode",
		Version: "2.0.1",
		Dependencies: map[string]string{
			"keybinding-core": "~1.2.0",
		},
	}

	require.NoError(t, Save(m, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, m.ID, loaded.ID)
	assert.Equal(t, m.Dependencies, loaded.Dependencies)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		manifest  Manifest
		wantField string
	}{
		{
			name:      "missing id",
			manifest:  Manifest{Version: "1.0.0"},
			wantField: "id",
		},
		{
			name:      "missing version",
			manifest:  Manifest{ID: "a"},
			wantField: "version",
		},
		{
			name:      "bad version",
			manifest:  Manifest{ID: "a", Version: "not-a-version"},
			wantField: "version",
		},
		{
			name: "self dependency",
			manifest: Manifest{
				ID:           "a",
				Version:      "1.0.0",
				Dependencies: map[string]string{"a": "*"},
			},
			wantField: "dependencies",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&tt.manifest)
			require.NotEmpty(t, errs)

			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			assert.True(t, found, "expected a %s error, got %v", tt.wantField, errs)
		})
	}

	valid := Manifest{ID: "a", Version: "v1.2.3", Dependencies: map[string]string{"b": "^1.0.0"}}
	assert.Empty(t, Validate(&valid))
}

func TestDependencyList(t *testing.T) {
	m := Manifest{
		ID:                   "a",
		Version:              "1.0.0",
		Dependencies:         map[string]string{"b": "^1.0.0"},
		OptionalDependencies: map[string]string{"c": "*"},
	}

	deps := m.DependencyList()
	require.Len(t, deps, 2)

	byID := make(map[string]Dependency)
	for _, d := range deps {
		byID[d.ID] = d
	}

	assert.False(t, byID["b"].Optional)
	assert.Equal(t, "^1.0.0", byID["b"].VersionConstraint)
	assert.True(t, byID["c"].Optional)
}
