// Package marketplace provides access to plugins that are not installed
// locally: a remote registry client, a SQLite-backed local catalog mirror,
// and a cron-driven syncer that keeps the mirror fresh.
//
// Both the Catalog and the Client satisfy the resolver's PluginProvider
// and VersionProvider interfaces, so resolution can run against the local
// mirror (offline) or the registry directly.
package marketplace
