// Package migrations contiene el esquema SQL embebido.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
