package store

import "embed"

// MigrationsDir is the directory inside Migrations holding the SQL files.
const MigrationsDir = "migrations"

// Migrations holds the schema applied by golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS
