package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mindmap/infrastructure/persistence/schema"
)

// migrations is the ordered schema history of the mindmaps store
var migrations = []struct {
	description string
	up          string
	down        string
}{
	{
		description: "create mindmaps table",
		up: `
create table if not exists mindmaps (
	id          uuid primary key,
	owner_id    text not null,
	title       text not null,
	nodes       jsonb not null default '[]'::jsonb,
	edges       jsonb not null default '[]'::jsonb,
	created_at  timestamptz not null,
	updated_at  timestamptz not null
)`,
	},
	{
		description: "index mindmaps by owner and recency",
		up:          `create index if not exists mindmaps_owner_updated_idx on mindmaps (owner_id, updated_at desc)`,
		down:        `drop index if exists mindmaps_owner_updated_idx`,
	},
}

// versionStore keeps applied versions in schema_migrations
type versionStore struct {
	pool *pgxpool.Pool
}

func (s versionStore) ensure(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
create table if not exists schema_migrations (
	version     integer primary key,
	description text not null,
	applied_at  timestamptz not null
)`)
	return err
}

func (s versionStore) CurrentVersion(ctx context.Context) (int, error) {
	var v int
	err := s.pool.QueryRow(ctx, `select coalesce(max(version), 0) from schema_migrations`).Scan(&v)
	return v, err
}

func (s versionStore) Record(ctx context.Context, v schema.SchemaVersion) error {
	_, err := s.pool.Exec(ctx,
		`insert into schema_migrations (version, description, applied_at) values ($1, $2, $3)`,
		v.Version, v.Description, v.AppliedAt)
	return err
}

func (s versionStore) Remove(ctx context.Context, version int) error {
	_, err := s.pool.Exec(ctx, `delete from schema_migrations where version = $1`, version)
	return err
}

// EnsureSchema applies any pending migrations
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	store := versionStore{pool: r.pool}
	if err := store.ensure(ctx); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	evo := schema.NewSchemaEvolution(store)
	for i, m := range migrations {
		m := m
		migration := schema.Migration{
			FromVersion: i,
			ToVersion:   i + 1,
			Description: m.description,
			Up: func(ctx context.Context) error {
				_, err := r.pool.Exec(ctx, m.up)
				return err
			},
		}
		if m.down != "" {
			migration.Down = func(ctx context.Context) error {
				_, err := r.pool.Exec(ctx, m.down)
				return err
			}
		}
		if err := evo.RegisterMigration(migration); err != nil {
			return err
		}
	}

	if err := evo.MigrateToLatest(ctx); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	for _, v := range evo.History() {
		r.logger.Info("Applied schema migration",
			zap.Int("version", v.Version),
			zap.String("description", v.Description),
		)
	}
	return nil
}
