package database

import "embed"

// Migrations holds the PostgreSQL schema for checkpoints, submissions and proctor events.
//
//go:embed migrations/*.sql
var Migrations embed.FS
