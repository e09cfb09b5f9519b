// Package appfs embeds the files shipped inside the binaries.
package appfs

import "embed"

// FS holds the SQL migrations (one directory per database engine), the email templates
// and static assets.
//
//go:embed assets migrations all:templates
var FS embed.FS
