// Package migrations embeds the ordered goose SQL migrations for the
// relational store, per spec.md §6 ("Database schema evolves via ordered
// migrations run at startup").
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
