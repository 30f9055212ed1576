package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mn-go/internal/mn"
)

const recordColumns = `pid, peer_node, status, size, format_id, verified_timestamp, failed_attempts, created_timestamp`

func scanRecord(row rowScanner) (*mn.ReplicationRecord, error) {
	var (
		r        mn.ReplicationRecord
		status   string
		verified sql.NullInt64
		created  int64
	)
	if err := row.Scan(&r.PID, &r.PeerNode, &status, &r.Size, &r.FormatID, &verified, &r.FailedAttempts, &created); err != nil {
		return nil, err
	}
	r.Status = mn.ReplicationStatus(status)
	if verified.Valid {
		r.Verified = fromNanos(verified.Int64)
	}
	r.Created = fromNanos(created)
	return &r, nil
}

func (t *sqliteTx) records(ctx context.Context, query string, args ...any) ([]*mn.ReplicationRecord, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*mn.ReplicationRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqliteTx) GetReplicationRecord(ctx context.Context, pid, peer string) (*mn.ReplicationRecord, error) {
	r, err := scanRecord(t.tx.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM replication_record WHERE pid = ? AND peer_node = ?", pid, peer))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("reading replication record: %w", err)
	}
	return r, nil
}

// InsertReplicationRecord stores r, replacing an earlier record for the
// same (pid, peer).
func (t *sqliteTx) InsertReplicationRecord(ctx context.Context, r *mn.ReplicationRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO replication_record (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (pid, peer_node) DO UPDATE SET
			status = excluded.status,
			size = excluded.size,
			format_id = excluded.format_id,
			verified_timestamp = excluded.verified_timestamp,
			failed_attempts = excluded.failed_attempts,
			created_timestamp = excluded.created_timestamp`,
		r.PID, r.PeerNode, string(r.Status), r.Size, r.FormatID, nullNanos(r.Verified), r.FailedAttempts, nanos(r.Created))
	if err != nil {
		return fmt.Errorf("inserting replication record: %w", err)
	}
	return nil
}

func (t *sqliteTx) UpdateReplicationRecord(ctx context.Context, r *mn.ReplicationRecord) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE replication_record
		SET status = ?, verified_timestamp = ?, failed_attempts = ?
		WHERE pid = ? AND peer_node = ?`,
		string(r.Status), nullNanos(r.Verified), r.FailedAttempts, r.PID, r.PeerNode)
	if err != nil {
		return fmt.Errorf("updating replication record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating replication record %s/%s: no such record", r.PID, r.PeerNode)
	}
	return nil
}

func (t *sqliteTx) ReplicationRecords(ctx context.Context, pid string) ([]*mn.ReplicationRecord, error) {
	recs, err := t.records(ctx,
		"SELECT "+recordColumns+" FROM replication_record WHERE pid = ? ORDER BY peer_node", pid)
	if err != nil {
		return nil, fmt.Errorf("listing replication records: %w", err)
	}
	return recs, nil
}

func (t *sqliteTx) QueuedReplications(ctx context.Context, limit int) ([]*mn.ReplicationRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	recs, err := t.records(ctx, `
		SELECT `+recordColumns+` FROM replication_record
		WHERE status = ?
		ORDER BY created_timestamp, pid
		LIMIT ?`, string(mn.StatusQueued), limit)
	if err != nil {
		return nil, fmt.Errorf("listing queued replications: %w", err)
	}
	return recs, nil
}

func (t *sqliteTx) RequeueRequested(ctx context.Context) (int, error) {
	res, err := t.tx.ExecContext(ctx, "UPDATE replication_record SET status = ? WHERE status = ?",
		string(mn.StatusQueued), string(mn.StatusRequested))
	if err != nil {
		return 0, fmt.Errorf("requeueing requested replications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeueing requested replications: %w", err)
	}
	return int(n), nil
}

func (t *sqliteTx) ReplicaStorageUsed(ctx context.Context) (int64, error) {
	var used int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(size), 0) FROM replication_record WHERE status IN (?, ?, ?)`,
		string(mn.StatusQueued), string(mn.StatusRequested), string(mn.StatusCompleted)).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("summing replica storage: %w", err)
	}
	return used, nil
}

func (t *sqliteTx) SetReplicationPolicy(ctx context.Context, pid string, p *mn.ReplicationPolicy) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM replication_policy WHERE pid = ?", pid); err != nil {
		return fmt.Errorf("clearing replication policy: %w", err)
	}
	if p == nil {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx,
		"INSERT INTO replication_policy (pid, allowed, number_replicas) VALUES (?, ?, ?)",
		pid, p.Allowed, p.NumberReplicas); err != nil {
		return fmt.Errorf("inserting replication policy: %w", err)
	}
	for pref, nodes := range map[string][]string{"preferred": p.PreferredNodes, "blocked": p.BlockedNodes} {
		for _, node := range nodes {
			if _, err := t.tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO replication_policy_node (pid, node, preference) VALUES (?, ?, ?)",
				pid, node, pref); err != nil {
				return fmt.Errorf("inserting %s node: %w", pref, err)
			}
		}
	}
	return nil
}

func (t *sqliteTx) GetReplicationPolicy(ctx context.Context, pid string) (*mn.ReplicationPolicy, error) {
	var p mn.ReplicationPolicy
	err := t.tx.QueryRowContext(ctx,
		"SELECT allowed, number_replicas FROM replication_policy WHERE pid = ?", pid).Scan(&p.Allowed, &p.NumberReplicas)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("reading replication policy: %w", err)
	}
	if p.PreferredNodes, err = t.strings(ctx,
		"SELECT node FROM replication_policy_node WHERE pid = ? AND preference = 'preferred' ORDER BY node", pid); err != nil {
		return nil, fmt.Errorf("reading preferred nodes: %w", err)
	}
	if p.BlockedNodes, err = t.strings(ctx,
		"SELECT node FROM replication_policy_node WHERE pid = ? AND preference = 'blocked' ORDER BY node", pid); err != nil {
		return nil, fmt.Errorf("reading blocked nodes: %w", err)
	}
	return &p, nil
}
