package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"delivery-cart/internal/database"
)

// PostgresStore keeps snapshots in the cart_snapshots table
type PostgresStore struct {
	db *database.DB
}

// NewPostgresStore creates a store on an already migrated database
func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.db.QueryRow(ctx, database.GetCartSnapshotSQL, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cart snapshot %s: %w", key, err)
	}
	return payload, nil
}

func (p *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := p.db.Exec(ctx, database.UpsertCartSnapshotSQL, key, value, SchemaVersion); err != nil {
		return fmt.Errorf("failed to upsert cart snapshot %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := p.db.Exec(ctx, database.DeleteCartSnapshotSQL, key); err != nil {
		return fmt.Errorf("failed to delete cart snapshot %s: %w", key, err)
	}
	return nil
}

// Ping checks the database is reachable
func (p *PostgresStore) Ping(ctx context.Context) bool {
	return p.db.Ping(ctx) == nil
}
