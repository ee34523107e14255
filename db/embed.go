// Package db embeds the PostgreSQL schema.
package db

import _ "embed"

// Schema creates the catalog, user and order tables. Every statement is
// idempotent so it can run on each start.
//
//go:embed migrations/001_schema.sql
var Schema string
