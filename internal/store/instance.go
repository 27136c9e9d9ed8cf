package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Instance is a component instance row: the durable half of the proxy.
// Storage holds the instance's persistent fields; ImplHandle is the single
// mutable slot of the implementation registry.
type Instance struct {
	ID          string
	Owner       string
	Initialized bool
	ImplHandle  string
	Storage     map[string]any
	CreatedSeq  int64
}

// CreateInstance inserts a new instance row. Fails if the ID already exists -
// instance creation is never idempotent, an ID collision is a bug.
func (t *Tx) CreateInstance(ctx context.Context, inst Instance) error {
	storageJSON, err := marshalStorage(inst.Storage)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO instances (id, owner, initialized, impl_handle, storage, created_seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		inst.ID,
		inst.Owner,
		boolToInt(inst.Initialized),
		inst.ImplHandle,
		storageJSON,
		inst.CreatedSeq,
	)
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	return nil
}

// GetInstance reads an instance row inside the transaction.
// Returns ErrNotFound if no row exists.
func (t *Tx) GetInstance(ctx context.Context, id string) (Instance, error) {
	return scanInstance(t.tx.QueryRowContext(ctx, `
		SELECT id, owner, initialized, impl_handle, storage, created_seq
		FROM instances WHERE id = ?
	`, id))
}

// UpdateInstance writes back an instance's mutable columns: owner,
// initialization flag, implementation handle, and storage. ID and
// created_seq never change.
func (t *Tx) UpdateInstance(ctx context.Context, inst Instance) error {
	storageJSON, err := marshalStorage(inst.Storage)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE instances
		SET owner = ?, initialized = ?, impl_handle = ?, storage = ?
		WHERE id = ?
	`,
		inst.Owner,
		boolToInt(inst.Initialized),
		inst.ImplHandle,
		storageJSON,
		inst.ID,
	)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update instance %s: %w", inst.ID, ErrNotFound)
	}
	return nil
}

// GetInstance reads an instance row outside any transaction.
// Returns ErrNotFound if no row exists.
func (s *Store) GetInstance(ctx context.Context, id string) (Instance, error) {
	return scanInstance(s.db.QueryRowContext(ctx, `
		SELECT id, owner, initialized, impl_handle, storage, created_seq
		FROM instances WHERE id = ?
	`, id))
}

func scanInstance(row *sql.Row) (Instance, error) {
	var inst Instance
	var initialized int
	var storageJSON string
	err := row.Scan(&inst.ID, &inst.Owner, &initialized, &inst.ImplHandle, &storageJSON, &inst.CreatedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, ErrNotFound
	}
	if err != nil {
		return Instance{}, fmt.Errorf("scan instance: %w", err)
	}
	inst.Initialized = initialized != 0
	inst.Storage, err = unmarshalStorage(storageJSON)
	if err != nil {
		return Instance{}, err
	}
	return inst, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
