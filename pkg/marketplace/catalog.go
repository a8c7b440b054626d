package marketplace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/inkwell/hostkit/pkg/manifest"
	"github.com/inkwell/hostkit/pkg/version"
)

const schema = `
CREATE TABLE IF NOT EXISTS plugins (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	author      TEXT NOT NULL DEFAULT '',
	license     TEXT NOT NULL DEFAULT '',
	homepage    TEXT NOT NULL DEFAULT '',
	repository  TEXT NOT NULL DEFAULT '',
	enabled     INTEGER NOT NULL DEFAULT 1,
	installs    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS plugin_versions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	plugin_id  TEXT NOT NULL REFERENCES plugins(id) ON DELETE CASCADE,
	version    TEXT NOT NULL,
	manifest   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (plugin_id, version)
);

CREATE INDEX IF NOT EXISTS idx_plugin_versions_plugin ON plugin_versions(plugin_id);
`

// CatalogEntry is a plugin summary row for listings.
type CatalogEntry struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Author        string    `json:"author"`
	LatestVersion string    `json:"latest_version"`
	Versions      int       `json:"versions"`
	Installs      int64     `json:"installs"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Catalog is a local SQLite mirror of the marketplace. It satisfies the
// resolver's provider interfaces so resolution works offline once synced.
type Catalog struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewCatalog wraps an already-open database. The caller owns migration.
func NewCatalog(db *sql.DB, log *logrus.Logger) *Catalog {
	if log == nil {
		log = logrus.New()
	}
	return &Catalog{db: db, log: log}
}

// OpenCatalog opens (creating if necessary) the catalog database at path
// and migrates the schema. Use ":memory:" for an ephemeral catalog.
func OpenCatalog(path string, log *logrus.Logger) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return NewCatalog(db, log), nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// UpsertPlugin records a manifest as one version of a plugin, creating the
// plugin row on first sight. Re-upserting an existing version replaces its
// stored manifest.
func (c *Catalog) UpsertPlugin(ctx context.Context, m *manifest.Manifest) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("manifest has no id")
	}
	if m.Version == "" {
		return fmt.Errorf("manifest for %s has no version", m.ID)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest for %s: %w", m.ID, err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO plugins (id, name, description, author, license, homepage, repository, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			author = excluded.author,
			license = excluded.license,
			homepage = excluded.homepage,
			repository = excluded.repository,
			updated_at = excluded.updated_at`,
		m.ID, m.Name, m.Description, m.Author, m.License, m.Homepage, m.Repository, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert plugin %s: %w", m.ID, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plugin_versions (plugin_id, version, manifest, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(plugin_id, version) DO UPDATE SET manifest = excluded.manifest`,
		m.ID, m.Version, string(raw), now)
	if err != nil {
		return fmt.Errorf("failed to upsert version %s of %s: %w", m.Version, m.ID, err)
	}

	return tx.Commit()
}

// FetchManifest returns the manifest of the newest version of id, or
// (nil, nil) when the plugin is unknown or disabled.
func (c *Catalog) FetchManifest(ctx context.Context, id string) (*manifest.Manifest, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT v.version, v.manifest
		FROM plugin_versions v
		JOIN plugins p ON p.id = v.plugin_id
		WHERE v.plugin_id = ? AND p.enabled = 1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions of %s: %w", id, err)
	}
	defer rows.Close()

	var latest string
	var latestRaw string
	for rows.Next() {
		var ver, raw string
		if err := rows.Scan(&ver, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		if latest == "" || version.CompareStrings(ver, latest) > 0 {
			latest, latestRaw = ver, raw
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate version rows: %w", err)
	}
	if latest == "" {
		return nil, nil
	}

	var m manifest.Manifest
	if err := json.Unmarshal([]byte(latestRaw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode stored manifest for %s: %w", id, err)
	}
	return &m, nil
}

// FetchManifestVersion returns the manifest of a specific version of id,
// or (nil, nil) when unknown.
func (c *Catalog) FetchManifestVersion(ctx context.Context, id, ver string) (*manifest.Manifest, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `
		SELECT v.manifest
		FROM plugin_versions v
		JOIN plugins p ON p.id = v.plugin_id
		WHERE v.plugin_id = ? AND v.version = ? AND p.enabled = 1`, id, ver).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query version %s of %s: %w", ver, id, err)
	}

	var m manifest.Manifest
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("failed to decode stored manifest for %s: %w", id, err)
	}
	return &m, nil
}

// ListVersions returns all known versions of id, newest first.
func (c *Catalog) ListVersions(ctx context.Context, id string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT version FROM plugin_versions WHERE plugin_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions of %s: %w", id, err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var ver string
		if err := rows.Scan(&ver); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions = append(versions, ver)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate version rows: %w", err)
	}

	sort.Slice(versions, func(i, j int) bool {
		return version.CompareStrings(versions[i], versions[j]) > 0
	})
	return versions, nil
}

// ListPlugins lists catalog entries, optionally filtered by a substring
// match on id, name or description.
func (c *Catalog) ListPlugins(ctx context.Context, search string, limit, offset int) ([]CatalogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := `
		SELECT p.id, p.name, p.description, p.author, p.installs, p.updated_at,
			COUNT(v.id) AS versions
		FROM plugins p
		LEFT JOIN plugin_versions v ON v.plugin_id = p.id
		WHERE p.enabled = 1`
	args := []interface{}{}

	if search != "" {
		query += ` AND (p.id LIKE ? OR p.name LIKE ? OR p.description LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query += ` GROUP BY p.id ORDER BY p.id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plugins: %w", err)
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Author, &e.Installs, &e.UpdatedAt, &e.Versions); err != nil {
			return nil, fmt.Errorf("failed to scan plugin row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plugin rows: %w", err)
	}

	for i := range entries {
		versions, err := c.ListVersions(ctx, entries[i].ID)
		if err != nil {
			return nil, err
		}
		if len(versions) > 0 {
			entries[i].LatestVersion = versions[0]
		}
	}
	return entries, nil
}

// CountPlugins returns the number of enabled plugins in the catalog.
func (c *Catalog) CountPlugins(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plugins WHERE enabled = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count plugins: %w", err)
	}
	return n, nil
}

// RecordInstall increments the install counter for id.
func (c *Catalog) RecordInstall(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE plugins SET installs = installs + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record install of %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("plugin %s not found", id)
	}
	return nil
}

// SetEnabled toggles whether a plugin is visible to lookups.
func (c *Catalog) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := c.db.ExecContext(ctx,
		`UPDATE plugins SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update plugin %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("plugin %s not found", id)
	}
	return nil
}

// DeletePlugin removes a plugin and all of its versions.
func (c *Catalog) DeletePlugin(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM plugins WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete plugin %s: %w", id, err)
	}
	return nil
}
