package migrate

import "embed"

// Files carries the schema and seed SQL so deployments migrate from the
// binary alone.
//
//go:embed sql/*.sql seeds/*.sql
var Files embed.FS
