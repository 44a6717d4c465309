// Package postgres implements the Relational repository backend on top of
// github.com/jackc/pgx/v5, with schema migrations applied through
// github.com/golang-migrate/migrate/v4.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Repository is a postgres-backed Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against databaseURL. Callers must call InitSchema
// before using it for the first time.
func Connect(ctx context.Context, databaseURL string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close(context.Context) error {
	r.pool.Close()
	return nil
}

func (r *Repository) InitSchema(ctx context.Context) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: load migrations: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(stdlib.OpenDBFromPool(r.pool), &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("postgres: migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx/v5", driver)
	if err != nil {
		return fmt.Errorf("postgres: new migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres: run migrations: %w", err)
	}
	return nil
}

func (r *Repository) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := r.pool.QueryRow(ctx, `SELECT schema_version FROM schema_meta WHERE id = 1`).Scan(&version)
	if err != nil {
		return 0, nil // treat "not yet initialized" as version 0 rather than an error
	}
	return version, nil
}

func (r *Repository) LoadAuth(ctx context.Context) (*model.AuthBootstrap, error) {
	var auth model.AuthBootstrap
	err := r.pool.QueryRow(ctx,
		`SELECT salt, verifier, argon2_m_cost, argon2_t_cost, argon2_p_cost FROM auth WHERE id = 1`).
		Scan(&auth.Salt, &auth.Verifier, &auth.Argon2MCost, &auth.Argon2TCost, &auth.Argon2PCost)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrAuthNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: load auth: %w", err)
	}
	return &auth, nil
}

func (r *Repository) SaveAuth(ctx context.Context, auth *model.AuthBootstrap) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO auth (id, salt, verifier, argon2_m_cost, argon2_t_cost, argon2_p_cost)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   salt = excluded.salt,
		   verifier = excluded.verifier,
		   argon2_m_cost = excluded.argon2_m_cost,
		   argon2_t_cost = excluded.argon2_t_cost,
		   argon2_p_cost = excluded.argon2_p_cost`,
		auth.Salt, auth.Verifier, auth.Argon2MCost, auth.Argon2TCost, auth.Argon2PCost)
	if err != nil {
		return fmt.Errorf("postgres: save auth: %w", err)
	}
	return nil
}

const selectItems = `SELECT id, item_type, title, username, url, encrypted_data, nonce, sync_version, created_at, updated_at FROM vault_items`

func (r *Repository) List(ctx context.Context) ([]model.VaultItem, error) {
	rows, err := r.pool.Query(ctx, selectItems+` ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items: %w", err)
	}
	defer rows.Close()

	var items []model.VaultItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *Repository) ListWithTombstones(ctx context.Context) ([]model.VaultItem, []model.SyncTombstone, error) {
	items, err := r.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, deleted_at, sync_version FROM tombstones`)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: list tombstones: %w", err)
	}
	defer rows.Close()

	var tombstones []model.SyncTombstone
	for rows.Next() {
		var t model.SyncTombstone
		if err := rows.Scan(&t.ID, &t.DeletedAt, &t.SyncVersion); err != nil {
			return nil, nil, fmt.Errorf("postgres: scan tombstone: %w", err)
		}
		tombstones = append(tombstones, t)
	}
	return items, tombstones, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*model.VaultItem, error) {
	row := r.pool.QueryRow(ctx, selectItems+` WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *Repository) Upsert(ctx context.Context, item *model.VaultItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO vault_items (id, item_type, title, username, url, encrypted_data, nonce, sync_version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   item_type = excluded.item_type,
		   title = excluded.title,
		   username = excluded.username,
		   url = excluded.url,
		   encrypted_data = excluded.encrypted_data,
		   nonce = excluded.nonce,
		   sync_version = excluded.sync_version,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at`,
		item.ID, string(item.Kind), item.Title, nullableString(item.Username), nullableString(item.URL),
		item.EncryptedData, item.Nonce[:], item.SyncVersion, item.CreatedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("postgres: upsert item: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tombstones WHERE id = $1`, item.ID); err != nil {
		return fmt.Errorf("postgres: clear tombstone on upsert: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID, tombstone model.SyncTombstone) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM vault_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if err := upsertTombstoneTx(ctx, tx, tombstone); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) UpsertTombstone(ctx context.Context, tombstone model.SyncTombstone) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin upsert tombstone: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM vault_items WHERE id = $1`, tombstone.ID); err != nil {
		return fmt.Errorf("postgres: clear item for tombstone: %w", err)
	}
	if err := upsertTombstoneTx(ctx, tx, tombstone); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func upsertTombstoneTx(ctx context.Context, tx pgx.Tx, tombstone model.SyncTombstone) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO tombstones (id, deleted_at, sync_version) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET
		   deleted_at = excluded.deleted_at,
		   sync_version = excluded.sync_version`,
		tombstone.ID, tombstone.DeletedAt.UTC(), tombstone.SyncVersion)
	if err != nil {
		return fmt.Errorf("postgres: upsert tombstone: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(s rowScanner) (*model.VaultItem, error) {
	var item model.VaultItem
	var kindText string
	var username, url *string
	var nonce []byte
	var createdAt, updatedAt time.Time

	if err := s.Scan(&item.ID, &kindText, &item.Title, &username, &url, &item.EncryptedData, &nonce,
		&item.SyncVersion, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if len(nonce) != 12 {
		return nil, fmt.Errorf("postgres: item %s: %w (length %d)", item.ID, repository.ErrCorruptNonce, len(nonce))
	}

	item.Kind = model.ItemKind(kindText)
	if username != nil {
		item.Username = *username
	}
	if url != nil {
		item.URL = *url
	}
	copy(item.Nonce[:], nonce)
	item.CreatedAt = createdAt.UTC()
	item.UpdatedAt = updatedAt.UTC()
	return &item, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
