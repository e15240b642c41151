package tokenstore

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresBackend stores entries in the secure_items table (see internal/db/migrations),
// partitioned by namespace. PutAll runs in a single transaction.
type PostgresBackend struct {
	db        *sql.DB
	namespace string
}

// NewPostgresBackend returns a backend using db. db must be opened with the pgx driver (see db.Open).
func NewPostgresBackend(db *sql.DB, namespace string) *PostgresBackend {
	if namespace == "" {
		namespace = "default"
	}
	return &PostgresBackend{db: db, namespace: namespace}
}

// Get returns the value stored under key.
func (b *PostgresBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM secure_items WHERE namespace = $1 AND key = $2`,
		b.namespace, key,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// PutAll upserts every entry inside one transaction.
func (b *PostgresBackend) PutAll(ctx context.Context, entries map[string][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for k, v := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO secure_items (namespace, key, value, updated_at)
			 VALUES ($1, $2, $3, now())
			 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			b.namespace, k, v,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes keys; missing keys are ignored.
func (b *PostgresBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := b.db.ExecContext(ctx,
		`DELETE FROM secure_items WHERE namespace = $1 AND key = ANY($2)`,
		b.namespace, keys,
	)
	return err
}
