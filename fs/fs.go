package appfs

import "embed"

// FS holds the static assets the application needs at runtime:
// SQL migrations and email template pairs.
//
//go:embed migrations all:templates
var FS embed.FS
