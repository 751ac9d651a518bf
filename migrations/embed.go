// Package migrations embeds the numbered postgres schema files applied by
// `bedflow-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
