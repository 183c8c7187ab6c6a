//go:build sqlite_cgo

package storage

// This file is compiled with the sqlite_cgo tag and links the C SQLite
// library. Add the fts5 tag to get the snippet full-text index; without it
// full-text search falls back to substring matching.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_cgo,fts5" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
