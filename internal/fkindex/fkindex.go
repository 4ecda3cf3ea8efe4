// Package fkindex implements the Design Notes' optional acceleration
// structure for foreign-key resolution: "if it becomes hot, index a map
// (type, uuid) -> path built lazily during FETCH." It is consulted first
// by internal/fk.Resolver and is purely an optimization — a cold or
// missing index never changes correctness, only how often the resolver
// falls back to the recursive workspace walk. Grounded on the teacher's
// gorm connection style (internal/db/connection.go).
package fkindex

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/a5c-ai/hub/internal/workspace"
)

// entry is the GORM model backing the cache table.
type entry struct {
	Type      string `gorm:"primaryKey"`
	UUID      string `gorm:"primaryKey"`
	Path      string
	UpdatedAt time.Time
}

func (entry) TableName() string { return "fk_index_entries" }

// Index is a GORM-backed (type, uuid) -> path cache, filled lazily as
// internal/fk.Resolver resolves foreign keys by walking the workspace, and
// safe to discard and rebuild at any time (it is
// never the source of truth — spec.md §5 keeps that in the workspace
// files).
type Index struct {
	db *gorm.DB
}

// Open connects to a sqlite or Postgres database per driver/dsn and
// ensures the cache table exists. An empty dsn defaults to an in-memory
// sqlite database, useful for single-run migrations where persistence
// across process restarts isn't needed.
func Open(driver, dsn string) (*Index, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported fk index driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening fk index database: %w", err)
	}

	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, fmt.Errorf("migrating fk index schema: %w", err)
	}

	return &Index{db: db}, nil
}

// Close releases the underlying database connection.
func (idx *Index) Close() error {
	sqlDB, err := idx.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores (or refreshes) the path for a (type, uuid) pair, called by
// internal/fk.Resolver after its workspace walk finds a detail file.
func (idx *Index) Record(typeName, uuid string, path workspace.Path) error {
	row := entry{Type: typeName, UUID: uuid, Path: path.String(), UpdatedAt: time.Now()}
	result := idx.db.Save(&row)
	if result.Error != nil {
		return fmt.Errorf("recording fk index entry for %s/%s: %w", typeName, uuid, result.Error)
	}
	return nil
}

// Lookup implements internal/fk.Index.
func (idx *Index) Lookup(typeName, uuid string) (workspace.Path, bool) {
	var row entry
	result := idx.db.First(&row, "type = ? AND uuid = ?", typeName, uuid)
	if result.Error != nil {
		return "", false
	}
	return workspace.Path(row.Path), true
}
