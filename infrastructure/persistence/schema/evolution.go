package schema

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SchemaVersion records an applied migration
type SchemaVersion struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	AppliedAt   time.Time `json:"applied_at"`
}

// Migration moves the schema from FromVersion to ToVersion
type Migration struct {
	FromVersion int
	ToVersion   int
	Description string
	Up          MigrationFunc
	Down        MigrationFunc
}

// MigrationFunc is a function that performs a migration
type MigrationFunc func(ctx context.Context) error

// VersionStore persists the applied schema version. Backends keep it next
// to the data they migrate.
type VersionStore interface {
	CurrentVersion(ctx context.Context) (int, error)
	Record(ctx context.Context, v SchemaVersion) error
	Remove(ctx context.Context, version int) error
}

// SchemaEvolution manages schema evolution for one store
type SchemaEvolution struct {
	store      VersionStore
	migrations []Migration
	history    []SchemaVersion
	now        func() time.Time
}

// NewSchemaEvolution creates a new schema evolution manager
func NewSchemaEvolution(store VersionStore) *SchemaEvolution {
	return &SchemaEvolution{store: store, now: time.Now}
}

// RegisterMigration registers a new migration
func (s *SchemaEvolution) RegisterMigration(migration Migration) error {
	if migration.ToVersion != migration.FromVersion+1 {
		return fmt.Errorf("invalid migration %d->%d: migrations advance one version at a time",
			migration.FromVersion, migration.ToVersion)
	}
	if migration.Up == nil {
		return fmt.Errorf("migration %d->%d has no Up step", migration.FromVersion, migration.ToVersion)
	}
	if s.findMigration(migration.FromVersion, migration.ToVersion) != nil {
		return fmt.Errorf("migration from %d to %d already exists",
			migration.FromVersion, migration.ToVersion)
	}

	s.migrations = append(s.migrations, migration)
	sort.Slice(s.migrations, func(i, j int) bool {
		return s.migrations[i].ToVersion < s.migrations[j].ToVersion
	})
	return nil
}

// Latest returns the highest registered version
func (s *SchemaEvolution) Latest() int {
	if len(s.migrations) == 0 {
		return 0
	}
	return s.migrations[len(s.migrations)-1].ToVersion
}

// MigrateToLatest applies every pending migration
func (s *SchemaEvolution) MigrateToLatest(ctx context.Context) error {
	return s.Migrate(ctx, s.Latest())
}

// Migrate performs migrations to reach the target version
func (s *SchemaEvolution) Migrate(ctx context.Context, targetVersion int) error {
	current, err := s.store.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	switch {
	case targetVersion == current:
		return nil
	case targetVersion < current:
		return s.rollback(ctx, current, targetVersion)
	default:
		return s.upgrade(ctx, current, targetVersion)
	}
}

func (s *SchemaEvolution) upgrade(ctx context.Context, current, targetVersion int) error {
	for current < targetVersion {
		migration := s.findMigration(current, current+1)
		if migration == nil {
			return fmt.Errorf("no migration found from version %d to %d", current, current+1)
		}

		if err := migration.Up(ctx); err != nil {
			return fmt.Errorf("migration %d->%d failed: %w",
				migration.FromVersion, migration.ToVersion, err)
		}

		applied := SchemaVersion{
			Version:     migration.ToVersion,
			Description: migration.Description,
			AppliedAt:   s.now(),
		}
		if err := s.store.Record(ctx, applied); err != nil {
			return fmt.Errorf("record schema version %d: %w", applied.Version, err)
		}
		s.history = append(s.history, applied)
		current = migration.ToVersion
	}
	return nil
}

func (s *SchemaEvolution) rollback(ctx context.Context, current, targetVersion int) error {
	for current > targetVersion {
		migration := s.findMigration(current-1, current)
		if migration == nil {
			return fmt.Errorf("no rollback found from version %d to %d", current, current-1)
		}
		if migration.Down == nil {
			return fmt.Errorf("migration %d->%d does not support rollback",
				migration.FromVersion, migration.ToVersion)
		}

		if err := migration.Down(ctx); err != nil {
			return fmt.Errorf("rollback %d->%d failed: %w",
				migration.ToVersion, migration.FromVersion, err)
		}
		if err := s.store.Remove(ctx, current); err != nil {
			return fmt.Errorf("remove schema version %d: %w", current, err)
		}
		current = migration.FromVersion
	}
	return nil
}

func (s *SchemaEvolution) findMigration(from, to int) *Migration {
	for i := range s.migrations {
		if s.migrations[i].FromVersion == from && s.migrations[i].ToVersion == to {
			return &s.migrations[i]
		}
	}
	return nil
}

// History returns the migrations applied by this instance
func (s *SchemaEvolution) History() []SchemaVersion {
	return s.history
}
