package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/pivot/internal/schema"
)

// BundleRow is a persisted bundle manifest. The op table is not persisted -
// handlers are live code, re-registered by the hosting process on startup.
type BundleRow struct {
	Handle      string
	Version     string
	Schema      schema.Schema
	DeployedSeq int64
}

// InsertBundle persists a bundle manifest.
// Uses ON CONFLICT(handle) DO NOTHING for idempotency - the handle is
// content-addressed, so a duplicate handle is byte-identical content.
func (t *Tx) InsertBundle(ctx context.Context, row BundleRow) (inserted bool, err error) {
	schemaJSON, err := json.Marshal(row.Schema)
	if err != nil {
		return false, fmt.Errorf("insert bundle: marshal schema: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO bundles (handle, version, schema, deployed_seq)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(handle) DO NOTHING
	`,
		row.Handle,
		row.Version,
		string(schemaJSON),
		row.DeployedSeq,
	)
	if err != nil {
		return false, fmt.Errorf("insert bundle: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert bundle: %w", err)
	}
	return n > 0, nil
}

// GetBundle reads a bundle manifest inside the transaction.
// Returns ErrNotFound if the handle was never deployed.
func (t *Tx) GetBundle(ctx context.Context, handle string) (BundleRow, error) {
	return scanBundle(t.tx.QueryRowContext(ctx, `
		SELECT handle, version, schema, deployed_seq FROM bundles WHERE handle = ?
	`, handle))
}

// GetBundle reads a bundle manifest outside any transaction.
func (s *Store) GetBundle(ctx context.Context, handle string) (BundleRow, error) {
	return scanBundle(s.db.QueryRowContext(ctx, `
		SELECT handle, version, schema, deployed_seq FROM bundles WHERE handle = ?
	`, handle))
}

// ListBundles returns all deployed bundle manifests ordered by deployment.
func (s *Store) ListBundles(ctx context.Context) ([]BundleRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT handle, version, schema, deployed_seq
		FROM bundles
		ORDER BY deployed_seq ASC, handle COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	defer rows.Close()

	bundles := []BundleRow{}
	for rows.Next() {
		var row BundleRow
		var schemaJSON string
		if err := rows.Scan(&row.Handle, &row.Version, &schemaJSON, &row.DeployedSeq); err != nil {
			return nil, fmt.Errorf("list bundles: %w", err)
		}
		if err := json.Unmarshal([]byte(schemaJSON), &row.Schema); err != nil {
			return nil, fmt.Errorf("list bundles: unmarshal schema: %w", err)
		}
		bundles = append(bundles, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}
	return bundles, nil
}

func scanBundle(row *sql.Row) (BundleRow, error) {
	var b BundleRow
	var schemaJSON string
	err := row.Scan(&b.Handle, &b.Version, &schemaJSON, &b.DeployedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return BundleRow{}, ErrNotFound
	}
	if err != nil {
		return BundleRow{}, fmt.Errorf("scan bundle: %w", err)
	}
	if err := json.Unmarshal([]byte(schemaJSON), &b.Schema); err != nil {
		return BundleRow{}, fmt.Errorf("scan bundle: unmarshal schema: %w", err)
	}
	return b, nil
}
