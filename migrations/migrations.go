// Package migrations embeds the SQL schema so the binary can migrate without a checkout.
package migrations

import "embed"

// FS holds the numbered *.sql migrations
//
//go:embed *.sql
var FS embed.FS
