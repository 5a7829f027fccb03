// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer free
// from ORM concerns.
//
// Structure:
// - base.go: common persistence fields
// - sync_run.go: sync run history with per-phase counters stored as JSON
package models
