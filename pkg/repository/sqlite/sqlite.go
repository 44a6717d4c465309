// Package sqlite implements the Embedded repository backend on top of
// modernc.org/sqlite, the pure-Go driver the teacher repository already
// depends on.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/repository"
)

// Repository is a sqlite-backed Repository. The zero value is not usable;
// construct one with Open.
type Repository struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// returns a Repository. Callers must call InitSchema before using it for
// the first time.
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoid SQLITE_BUSY churn
	return &Repository{db: db}, nil
}

func (r *Repository) Close(context.Context) error {
	return r.db.Close()
}

func (r *Repository) InitSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS auth (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			salt BLOB NOT NULL,
			verifier TEXT NOT NULL,
			argon2_m_cost INTEGER NOT NULL,
			argon2_t_cost INTEGER NOT NULL,
			argon2_p_cost INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vault_items (
			id TEXT PRIMARY KEY,
			item_type TEXT NOT NULL,
			title TEXT NOT NULL,
			username TEXT,
			url TEXT,
			encrypted_data BLOB NOT NULL,
			nonce BLOB NOT NULL,
			sync_version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tombstones (
			id TEXT PRIMARY KEY,
			deleted_at INTEGER NOT NULL,
			sync_version INTEGER NOT NULL
		)`,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin init: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init schema: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_meta (id, schema_version) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET schema_version = excluded.schema_version`,
		model.SchemaVersion); err != nil {
		return fmt.Errorf("sqlite: write schema_meta: %w", err)
	}

	return tx.Commit()
}

func (r *Repository) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := r.db.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id = 1`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: read schema version: %w", err)
	}
	return version, nil
}

func (r *Repository) LoadAuth(ctx context.Context) (*model.AuthBootstrap, error) {
	var auth model.AuthBootstrap
	err := r.db.QueryRowContext(ctx,
		`SELECT salt, verifier, argon2_m_cost, argon2_t_cost, argon2_p_cost FROM auth WHERE id = 1`).
		Scan(&auth.Salt, &auth.Verifier, &auth.Argon2MCost, &auth.Argon2TCost, &auth.Argon2PCost)
	if err == sql.ErrNoRows {
		return nil, repository.ErrAuthNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: load auth: %w", err)
	}
	return &auth, nil
}

func (r *Repository) SaveAuth(ctx context.Context, auth *model.AuthBootstrap) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth (id, salt, verifier, argon2_m_cost, argon2_t_cost, argon2_p_cost)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   salt = excluded.salt,
		   verifier = excluded.verifier,
		   argon2_m_cost = excluded.argon2_m_cost,
		   argon2_t_cost = excluded.argon2_t_cost,
		   argon2_p_cost = excluded.argon2_p_cost`,
		auth.Salt, auth.Verifier, auth.Argon2MCost, auth.Argon2TCost, auth.Argon2PCost)
	if err != nil {
		return fmt.Errorf("sqlite: save auth: %w", err)
	}
	return nil
}

const listQuery = `SELECT id, item_type, title, username, url, encrypted_data, nonce, sync_version, created_at, updated_at
	FROM vault_items WHERE sync_version >= 0`

func (r *Repository) List(ctx context.Context) ([]model.VaultItem, error) {
	rows, err := r.db.QueryContext(ctx, listQuery+` ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (r *Repository) ListWithTombstones(ctx context.Context) ([]model.VaultItem, []model.SyncTombstone, error) {
	items, err := r.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, deleted_at, sync_version FROM tombstones`)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: list tombstones: %w", err)
	}
	defer rows.Close()

	var tombstones []model.SyncTombstone
	for rows.Next() {
		var idText string
		var t model.SyncTombstone
		var deletedAt int64
		if err := rows.Scan(&idText, &deletedAt, &t.SyncVersion); err != nil {
			return nil, nil, fmt.Errorf("sqlite: scan tombstone: %w", err)
		}
		t.ID, err = uuid.Parse(idText)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: parse tombstone id: %w", err)
		}
		t.DeletedAt = time.UnixMilli(deletedAt).UTC()
		tombstones = append(tombstones, t)
	}
	return items, tombstones, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*model.VaultItem, error) {
	row := r.db.QueryRowContext(ctx, listQuery+` AND id = ?`, id.String())
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get item: %w", err)
	}
	return item, nil
}

func (r *Repository) Upsert(ctx context.Context, item *model.VaultItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO vault_items (id, item_type, title, username, url, encrypted_data, nonce, sync_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   item_type = excluded.item_type,
		   title = excluded.title,
		   username = excluded.username,
		   url = excluded.url,
		   encrypted_data = excluded.encrypted_data,
		   nonce = excluded.nonce,
		   sync_version = excluded.sync_version,
		   created_at = excluded.created_at,
		   updated_at = excluded.updated_at`,
		item.ID.String(), string(item.Kind), item.Title, nullableString(item.Username), nullableString(item.URL),
		item.EncryptedData, item.Nonce[:], item.SyncVersion,
		item.CreatedAt.UTC().UnixMilli(), item.UpdatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: upsert item: %w", err)
	}

	// An item being (re)written is, by definition, no longer tombstoned.
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tombstones WHERE id = ?`, item.ID.String()); err != nil {
		return fmt.Errorf("sqlite: clear tombstone on upsert: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID, tombstone model.SyncTombstone) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin delete: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM vault_items WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("sqlite: delete item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}

	if err := upsertTombstoneTx(ctx, tx, tombstone); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) UpsertTombstone(ctx context.Context, tombstone model.SyncTombstone) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin upsert tombstone: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vault_items WHERE id = ?`, tombstone.ID.String()); err != nil {
		return fmt.Errorf("sqlite: clear item for tombstone: %w", err)
	}
	if err := upsertTombstoneTx(ctx, tx, tombstone); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertTombstoneTx(ctx context.Context, tx *sql.Tx, tombstone model.SyncTombstone) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tombstones (id, deleted_at, sync_version) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   deleted_at = excluded.deleted_at,
		   sync_version = excluded.sync_version`,
		tombstone.ID.String(), tombstone.DeletedAt.UTC().UnixMilli(), tombstone.SyncVersion)
	if err != nil {
		return fmt.Errorf("sqlite: upsert tombstone: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*model.VaultItem, error) {
	var item model.VaultItem
	var idText, kindText string
	var username, url sql.NullString
	var nonce []byte
	var createdAt, updatedAt int64

	if err := s.Scan(&idText, &kindText, &item.Title, &username, &url, &item.EncryptedData, &nonce,
		&item.SyncVersion, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse item id: %w", err)
	}
	if len(nonce) != 12 {
		return nil, fmt.Errorf("sqlite: item %s: %w (length %d)", id, repository.ErrCorruptNonce, len(nonce))
	}

	item.ID = id
	item.Kind = model.ItemKind(kindText)
	item.Username = username.String
	item.URL = url.String
	copy(item.Nonce[:], nonce)
	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	item.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]model.VaultItem, error) {
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

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
