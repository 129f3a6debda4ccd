// Package database provides the PostgreSQL connection pool for the optional
// event sink. The watcher runs fine without it; persistence is enabled via
// config.
package database
