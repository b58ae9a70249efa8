// Package migrations embeds the bridge's SQL schema so the binary can
// create and upgrade the history database without files on disk.
package migrations

import "embed"

// FS holds every *.sql file in this directory, at the root of the FS.
//
//go:embed *.sql
var FS embed.FS
