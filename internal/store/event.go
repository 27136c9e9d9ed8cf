package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/pivot/internal/audit"
)

// AppendEvent writes an audit event inside the transaction that produced it,
// so the event is durable iff the operation it records committed.
func (t *Tx) AppendEvent(ctx context.Context, ev audit.Event) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (seq, kind, instance_id, actor, from_version, to_version, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Seq,
		string(ev.Kind),
		ev.InstanceID,
		ev.Actor,
		ev.FromVersion,
		ev.ToVersion,
		ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEvents returns audit events ordered by sequence. An empty instanceID
// returns events for all instances. Returns an empty slice, not nil, when
// no events match.
func (s *Store) ListEvents(ctx context.Context, instanceID string) ([]audit.Event, error) {
	var rows *sql.Rows
	var err error
	if instanceID == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT seq, kind, instance_id, actor, from_version, to_version, at
			FROM events ORDER BY seq ASC
		`)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT seq, kind, instance_id, actor, from_version, to_version, at
			FROM events WHERE instance_id = ? ORDER BY seq ASC
		`, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []audit.Event{}
	for rows.Next() {
		var ev audit.Event
		var kind, at string
		if err := rows.Scan(&ev.Seq, &kind, &ev.InstanceID, &ev.Actor, &ev.FromVersion, &ev.ToVersion, &at); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		ev.Kind = audit.Kind(kind)
		ev.At, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("list events: parse timestamp: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// MaxEventSeq returns the highest event sequence number, or 0 if no events
// exist. Used to resume the logical clock after restart.
func (s *Store) MaxEventSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max event seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
