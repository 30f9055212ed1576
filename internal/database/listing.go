package database

import (
	"context"
	"fmt"
	"strings"

	"mn-go/internal/mn"
	"mn-go/internal/slice"
)

// Resource map operations

func (t *sqliteTx) ReplaceResourceMap(ctx context.Context, mapPID string, members []string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM resource_map_member WHERE map_pid = ?", mapPID); err != nil {
		return fmt.Errorf("clearing resource map: %w", err)
	}
	for _, did := range members {
		if _, err := t.tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO resource_map_member (map_pid, did) VALUES (?, ?)", mapPID, did); err != nil {
			return fmt.Errorf("inserting resource map member: %w", err)
		}
	}
	return nil
}

func (t *sqliteTx) MapMembers(ctx context.Context, mapPID string) ([]string, error) {
	dids, err := t.strings(ctx, "SELECT did FROM resource_map_member WHERE map_pid = ? ORDER BY did", mapPID)
	if err != nil {
		return nil, fmt.Errorf("listing resource map members: %w", err)
	}
	return dids, nil
}

func (t *sqliteTx) MapsContaining(ctx context.Context, did string) ([]string, error) {
	pids, err := t.strings(ctx, "SELECT map_pid FROM resource_map_member WHERE did = ? ORDER BY map_pid", did)
	if err != nil {
		return nil, fmt.Errorf("listing resource maps: %w", err)
	}
	return pids, nil
}

// Listing operations

// objectWhere renders f as a WHERE clause over science_object aliased o.
func objectWhere(f mn.ObjectFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.FormatID != "" {
		conds = append(conds, "o.format_id = ?")
		args = append(args, f.FormatID)
	}
	if !f.FromDate.IsZero() {
		conds = append(conds, "o.modified_timestamp >= ?")
		args = append(args, f.FromDate.UnixNano())
	}
	if !f.ToDate.IsZero() {
		conds = append(conds, "o.modified_timestamp < ?")
		args = append(args, f.ToDate.UnixNano())
	}
	if f.Replicas != nil {
		conds = append(conds, "o.is_replica = ?")
		args = append(args, *f.Replicas)
	}
	if f.ReadableBy != nil {
		if len(f.ReadableBy) == 0 {
			conds = append(conds, "0")
		} else {
			conds = append(conds, "EXISTS (SELECT 1 FROM permission p WHERE p.pid = o.pid AND p.subject IN ("+
				placeholders(len(f.ReadableBy))+"))")
			args = append(args, stringArgs(f.ReadableBy)...)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (t *sqliteTx) CountObjects(ctx context.Context, f mn.ObjectFilter) (int, error) {
	where, args := objectWhere(f)
	var n int
	if err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM science_object o"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting objects: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) ListObjects(ctx context.Context, f mn.ObjectFilter, after *slice.Cursor, offset, limit int) ([]mn.ObjectInfo, error) {
	where, args := objectWhere(f)
	if after != nil {
		seek := "(o.modified_timestamp < ? OR (o.modified_timestamp = ? AND o.id < ?))"
		ts := after.Timestamp.UnixNano()
		if where == "" {
			where = " WHERE " + seek
		} else {
			where += " AND " + seek
		}
		args = append(args, ts, ts, after.ID)
		offset = 0
	}
	query := `SELECT o.id, o.pid, o.format_id, o.checksum_algorithm, o.checksum_value,
			o.size, o.modified_timestamp, o.is_archived
		FROM science_object o` + where + `
		ORDER BY o.modified_timestamp DESC, o.id DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing objects: %w", err)
	}
	defer rows.Close()

	var out []mn.ObjectInfo
	for rows.Next() {
		var (
			info     mn.ObjectInfo
			modified int64
		)
		if err := rows.Scan(&info.ID, &info.PID, &info.FormatID, &info.Checksum.Algorithm, &info.Checksum.Value,
			&info.Size, &modified, &info.Archived); err != nil {
			return nil, fmt.Errorf("reading object row: %w", err)
		}
		info.Modified = fromNanos(modified)
		out = append(out, info)
	}
	return out, rows.Err()
}

// prefixed qualifies every column of a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
