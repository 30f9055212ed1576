package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mn-go/internal/mn"
)

// Identifier operations

func (t *sqliteTx) IdentifierFacts(ctx context.Context, did string) (mn.IdentifierFacts, error) {
	f := mn.IdentifierFacts{DID: did}
	var err error

	if f.Known, err = t.exists(ctx, "SELECT 1 FROM id_namespace WHERE did = ?", did); err != nil {
		return f, fmt.Errorf("checking namespace: %w", err)
	}
	if f.SeriesOf, err = t.ChainBySID(ctx, did); err != nil {
		return f, err
	}
	if f.Object, err = t.GetObject(ctx, did); err != nil {
		return f, err
	}
	if f.Object == nil {
		var status string
		err := t.tx.QueryRowContext(ctx, `
			SELECT status FROM replication_record
			WHERE pid = ? AND status IN (?, ?)
			ORDER BY created_timestamp LIMIT 1`,
			did, string(mn.StatusQueued), string(mn.StatusRequested)).Scan(&status)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return f, fmt.Errorf("reading replica status: %w", err)
		default:
			f.ReplicaStatus = mn.ReplicationStatus(status)
		}
	}
	if f.ChainReference, err = t.exists(ctx, "SELECT 1 FROM chain_reference WHERE did = ?", did); err != nil {
		return f, fmt.Errorf("checking chain reference: %w", err)
	}
	if f.ResourceMap, err = t.exists(ctx, "SELECT 1 FROM resource_map_member WHERE map_pid = ? LIMIT 1", did); err != nil {
		return f, fmt.Errorf("checking resource map: %w", err)
	}
	if f.MapMember, err = t.exists(ctx, "SELECT 1 FROM resource_map_member WHERE did = ? LIMIT 1", did); err != nil {
		return f, fmt.Errorf("checking map membership: %w", err)
	}
	return f, nil
}

func (t *sqliteTx) RecordDID(ctx context.Context, did string) error {
	if _, err := t.tx.ExecContext(ctx, "INSERT OR IGNORE INTO id_namespace (did) VALUES (?)", did); err != nil {
		return fmt.Errorf("recording identifier: %w", err)
	}
	return nil
}

// Object operations

const objectColumns = `id, pid, format_id, size, checksum_algorithm, checksum_value,
	submitter, rights_holder, origin_node, authoritative_node, date_uploaded,
	modified_timestamp, serial_version, is_archived, obsoletes, obsoleted_by,
	url, is_proxy, is_replica`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (*mn.ScienceObject, error) {
	var (
		o                     mn.ScienceObject
		uploaded, modified    int64
		obsoletes, obsoleteBy sql.NullString
	)
	err := row.Scan(&o.ID, &o.PID, &o.FormatID, &o.Size, &o.Checksum.Algorithm, &o.Checksum.Value,
		&o.Submitter, &o.RightsHolder, &o.OriginNode, &o.AuthoritativeNode, &uploaded,
		&modified, &o.SerialVersion, &o.Archived, &obsoletes, &obsoleteBy,
		&o.URL, &o.Proxy, &o.Replica)
	if err != nil {
		return nil, err
	}
	o.DateUploaded = fromNanos(uploaded)
	o.Modified = fromNanos(modified)
	o.Obsoletes = obsoletes.String
	o.ObsoletedBy = obsoleteBy.String
	return &o, nil
}

func (t *sqliteTx) GetObject(ctx context.Context, pid string) (*mn.ScienceObject, error) {
	row := t.tx.QueryRowContext(ctx, "SELECT "+objectColumns+" FROM science_object WHERE pid = ?", pid)
	o, err := scanObject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("reading object: %w", err)
	}
	return o, nil
}

func (t *sqliteTx) InsertObject(ctx context.Context, o *mn.ScienceObject) error {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO science_object (
			pid, format_id, size, checksum_algorithm, checksum_value,
			submitter, rights_holder, origin_node, authoritative_node, date_uploaded,
			modified_timestamp, serial_version, is_archived, obsoletes, obsoleted_by,
			url, is_proxy, is_replica)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.PID, o.FormatID, o.Size, o.Checksum.Algorithm, o.Checksum.Value,
		o.Submitter, o.RightsHolder, o.OriginNode, o.AuthoritativeNode, nanos(o.DateUploaded),
		nanos(o.Modified), o.SerialVersion, o.Archived, nullString(o.Obsoletes), nullString(o.ObsoletedBy),
		o.URL, o.Proxy, o.Replica)
	if err != nil {
		return fmt.Errorf("inserting object: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading object id: %w", err)
	}
	o.ID = id
	return nil
}

// UpdateObject writes the mutable fields of o.
func (t *sqliteTx) UpdateObject(ctx context.Context, o *mn.ScienceObject) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE science_object SET
			rights_holder = ?, authoritative_node = ?, modified_timestamp = ?,
			serial_version = ?, is_archived = ?, obsoletes = ?, obsoleted_by = ?
		WHERE pid = ?`,
		o.RightsHolder, o.AuthoritativeNode, nanos(o.Modified),
		o.SerialVersion, o.Archived, nullString(o.Obsoletes), nullString(o.ObsoletedBy),
		o.PID)
	if err != nil {
		return fmt.Errorf("updating object: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating object %s: no such object", o.PID)
	}
	return nil
}

func (t *sqliteTx) ListLocalPIDs(ctx context.Context, replicas bool) ([]string, error) {
	pids, err := t.strings(ctx, "SELECT pid FROM science_object WHERE is_replica = ? ORDER BY id", replicas)
	if err != nil {
		return nil, fmt.Errorf("listing local pids: %w", err)
	}
	return pids, nil
}

// Chain operations

func scanChain(row rowScanner) (*mn.Chain, error) {
	var (
		c   mn.Chain
		sid sql.NullString
	)
	if err := row.Scan(&c.ID, &sid, &c.TailPID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading chain: %w", err)
	}
	c.SID = sid.String
	return &c, nil
}

func (t *sqliteTx) ChainOf(ctx context.Context, pid string) (*mn.Chain, error) {
	return scanChain(t.tx.QueryRowContext(ctx, `
		SELECT c.id, c.sid, c.tail_pid
		FROM chain c JOIN chain_member m ON m.chain_id = c.id
		WHERE m.pid = ?`, pid))
}

func (t *sqliteTx) ChainBySID(ctx context.Context, sid string) (*mn.Chain, error) {
	return scanChain(t.tx.QueryRowContext(ctx, "SELECT id, sid, tail_pid FROM chain WHERE sid = ?", sid))
}

func (t *sqliteTx) InsertChain(ctx context.Context, c *mn.Chain) error {
	res, err := t.tx.ExecContext(ctx, "INSERT INTO chain (sid, tail_pid) VALUES (?, ?)", nullString(c.SID), c.TailPID)
	if err != nil {
		return fmt.Errorf("inserting chain: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading chain id: %w", err)
	}
	c.ID = id
	return nil
}

func (t *sqliteTx) UpdateChain(ctx context.Context, c *mn.Chain) error {
	if _, err := t.tx.ExecContext(ctx, "UPDATE chain SET sid = ?, tail_pid = ? WHERE id = ?",
		nullString(c.SID), c.TailPID, c.ID); err != nil {
		return fmt.Errorf("updating chain: %w", err)
	}
	return nil
}

func (t *sqliteTx) SetChainMember(ctx context.Context, pid string, chainID int64) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO chain_member (pid, chain_id) VALUES (?, ?)
		ON CONFLICT (pid) DO UPDATE SET chain_id = excluded.chain_id`, pid, chainID); err != nil {
		return fmt.Errorf("setting chain member: %w", err)
	}
	return nil
}

func (t *sqliteTx) ChainMembers(ctx context.Context, chainID int64) ([]*mn.ScienceObject, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+prefixed("o", objectColumns)+`
		FROM science_object o JOIN chain_member m ON m.pid = o.pid
		WHERE m.chain_id = ?
		ORDER BY o.id`, chainID)
	if err != nil {
		return nil, fmt.Errorf("listing chain members: %w", err)
	}
	defer rows.Close()

	var out []*mn.ScienceObject
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("reading chain member: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *sqliteTx) AddChainReference(ctx context.Context, did string) error {
	if _, err := t.tx.ExecContext(ctx, "INSERT OR IGNORE INTO chain_reference (did) VALUES (?)", did); err != nil {
		return fmt.Errorf("adding chain reference: %w", err)
	}
	return nil
}
