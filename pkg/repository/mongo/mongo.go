// Package mongo implements the Document repository backend on top of
// go.mongodb.org/mongo-driver, mirroring the collection layout the
// reference implementation's mongodb crate storage module uses.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chacrab/chacrab/pkg/model"
	"github.com/chacrab/chacrab/pkg/repository"
)

const defaultDatabase = "chacrab"

// Repository is a mongo-backed Repository.
type Repository struct {
	client     *mongo.Client
	vaultItems *mongo.Collection
	tombstones *mongo.Collection
	auth       *mongo.Collection
	metadata   *mongo.Collection
}

// Connect dials databaseURL and returns a Repository. Callers must call
// InitSchema before using it for the first time.
func Connect(ctx context.Context, databaseURL string) (*Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	db := client.Database(defaultDatabase)
	return &Repository{
		client:     client,
		vaultItems: db.Collection("vault_items"),
		tombstones: db.Collection("tombstones"),
		auth:       db.Collection("auth"),
		metadata:   db.Collection("metadata"),
	}, nil
}

func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.vaultItems.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongo: create index: %w", err)
	}

	_, err = r.metadata.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: "schema"}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "version", Value: model.SchemaVersion}}}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: write schema metadata: %w", err)
	}
	return nil
}

func (r *Repository) SchemaVersion(ctx context.Context) (int, error) {
	var doc struct {
		Version int `bson:"version"`
	}
	err := r.metadata.FindOne(ctx, bson.D{{Key: "_id", Value: "schema"}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("mongo: read schema metadata: %w", err)
	}
	return doc.Version, nil
}

func (r *Repository) LoadAuth(ctx context.Context) (*model.AuthBootstrap, error) {
	var doc authDocument
	err := r.auth.FindOne(ctx, bson.D{{Key: "id", Value: 1}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, repository.ErrAuthNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: load auth: %w", err)
	}
	return doc.toModel(), nil
}

func (r *Repository) SaveAuth(ctx context.Context, auth *model.AuthBootstrap) error {
	_, err := r.auth.UpdateOne(ctx,
		bson.D{{Key: "id", Value: 1}},
		bson.D{{Key: "$set", Value: fromModelAuth(auth)}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: save auth: %w", err)
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]model.VaultItem, error) {
	cursor, err := r.vaultItems.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo: list items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []model.VaultItem
	for cursor.Next(ctx) {
		var doc itemDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode item: %w", err)
		}
		item, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, cursor.Err()
}

func (r *Repository) ListWithTombstones(ctx context.Context) ([]model.VaultItem, []model.SyncTombstone, error) {
	items, err := r.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	cursor, err := r.tombstones.Find(ctx, bson.D{})
	if err != nil {
		return nil, nil, fmt.Errorf("mongo: list tombstones: %w", err)
	}
	defer cursor.Close(ctx)

	var tombstones []model.SyncTombstone
	for cursor.Next(ctx) {
		var doc tombstoneDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, nil, fmt.Errorf("mongo: decode tombstone: %w", err)
		}
		t, err := doc.toModel()
		if err != nil {
			return nil, nil, err
		}
		tombstones = append(tombstones, *t)
	}
	return items, tombstones, cursor.Err()
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*model.VaultItem, error) {
	var doc itemDocument
	err := r.vaultItems.FindOne(ctx, bson.D{{Key: "id", Value: id.String()}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get item: %w", err)
	}
	return doc.toModel()
}

func (r *Repository) Upsert(ctx context.Context, item *model.VaultItem) error {
	_, err := r.vaultItems.ReplaceOne(ctx,
		bson.D{{Key: "id", Value: item.ID.String()}},
		fromModelItem(item),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: upsert item: %w", err)
	}

	if _, err := r.tombstones.DeleteOne(ctx, bson.D{{Key: "id", Value: item.ID.String()}}); err != nil {
		return fmt.Errorf("mongo: clear tombstone on upsert: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID, tombstone model.SyncTombstone) error {
	result, err := r.vaultItems.DeleteOne(ctx, bson.D{{Key: "id", Value: id.String()}})
	if err != nil {
		return fmt.Errorf("mongo: delete item: %w", err)
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return r.UpsertTombstone(ctx, tombstone)
}

func (r *Repository) UpsertTombstone(ctx context.Context, tombstone model.SyncTombstone) error {
	if _, err := r.vaultItems.DeleteOne(ctx, bson.D{{Key: "id", Value: tombstone.ID.String()}}); err != nil {
		return fmt.Errorf("mongo: clear item for tombstone: %w", err)
	}

	_, err := r.tombstones.ReplaceOne(ctx,
		bson.D{{Key: "id", Value: tombstone.ID.String()}},
		fromModelTombstone(tombstone),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: upsert tombstone: %w", err)
	}
	return nil
}

// itemDocument/authDocument/tombstoneDocument are the BSON document shapes
// stored in Mongo; VaultItem/AuthBootstrap/SyncTombstone stay storage-agnostic.

type itemDocument struct {
	ID            string `bson:"id"`
	ItemType      string `bson:"item_type"`
	Title         string `bson:"title"`
	Username      string `bson:"username,omitempty"`
	URL           string `bson:"url,omitempty"`
	EncryptedData []byte `bson:"encrypted_data"`
	Nonce         []byte `bson:"nonce"`
	SyncVersion   uint64 `bson:"sync_version"`
	CreatedAt     int64  `bson:"created_at"` // unix millis
	UpdatedAt     int64  `bson:"updated_at"`
}

func fromModelItem(item *model.VaultItem) itemDocument {
	return itemDocument{
		ID:            item.ID.String(),
		ItemType:      string(item.Kind),
		Title:         item.Title,
		Username:      item.Username,
		URL:           item.URL,
		EncryptedData: item.EncryptedData,
		Nonce:         item.Nonce[:],
		SyncVersion:   item.SyncVersion,
		CreatedAt:     item.CreatedAt.UTC().UnixMilli(),
		UpdatedAt:     item.UpdatedAt.UTC().UnixMilli(),
	}
}

func (d itemDocument) toModel() (*model.VaultItem, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("mongo: parse item id: %w", err)
	}
	if len(d.Nonce) != 12 {
		return nil, fmt.Errorf("mongo: item %s: %w (length %d)", id, repository.ErrCorruptNonce, len(d.Nonce))
	}

	item := &model.VaultItem{
		ID:            id,
		Kind:          model.ItemKind(d.ItemType),
		Title:         d.Title,
		Username:      d.Username,
		URL:           d.URL,
		EncryptedData: d.EncryptedData,
		SyncVersion:   d.SyncVersion,
		CreatedAt:     time.UnixMilli(d.CreatedAt).UTC(),
		UpdatedAt:     time.UnixMilli(d.UpdatedAt).UTC(),
	}
	copy(item.Nonce[:], d.Nonce)
	return item, nil
}

type tombstoneDocument struct {
	ID          string `bson:"id"`
	DeletedAt   int64  `bson:"deleted_at"`
	SyncVersion uint64 `bson:"sync_version"`
}

func fromModelTombstone(t model.SyncTombstone) tombstoneDocument {
	return tombstoneDocument{ID: t.ID.String(), DeletedAt: t.DeletedAt.UTC().UnixMilli(), SyncVersion: t.SyncVersion}
}

func (d tombstoneDocument) toModel() (*model.SyncTombstone, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("mongo: parse tombstone id: %w", err)
	}
	return &model.SyncTombstone{ID: id, DeletedAt: time.UnixMilli(d.DeletedAt).UTC(), SyncVersion: d.SyncVersion}, nil
}

type authDocument struct {
	ID          int    `bson:"id"`
	Salt        []byte `bson:"salt"`
	Verifier    string `bson:"verifier"`
	Argon2MCost uint32 `bson:"argon2_m_cost"`
	Argon2TCost uint32 `bson:"argon2_t_cost"`
	Argon2PCost uint32 `bson:"argon2_p_cost"`
}

func fromModelAuth(a *model.AuthBootstrap) authDocument {
	return authDocument{
		ID:          1,
		Salt:        a.Salt,
		Verifier:    a.Verifier,
		Argon2MCost: a.Argon2MCost,
		Argon2TCost: a.Argon2TCost,
		Argon2PCost: a.Argon2PCost,
	}
}

func (d authDocument) toModel() *model.AuthBootstrap {
	return &model.AuthBootstrap{
		Salt:        d.Salt,
		Verifier:    d.Verifier,
		Argon2MCost: d.Argon2MCost,
		Argon2TCost: d.Argon2TCost,
		Argon2PCost: d.Argon2PCost,
	}
}
