package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"mn-go/internal/access"
)

// Access rules are stored as one row per (pid, subject) holding the highest
// level granted to the subject. Rules are regrouped by level on read.

func (t *sqliteTx) ObjectExists(ctx context.Context, pid string) (bool, error) {
	ok, err := t.exists(ctx, "SELECT 1 FROM science_object WHERE pid = ?", pid)
	if err != nil {
		return false, fmt.Errorf("checking object: %w", err)
	}
	return ok, nil
}

func (t *sqliteTx) MaxLevel(ctx context.Context, pid string, subjects []string) (access.Level, bool, error) {
	if len(subjects) == 0 {
		return 0, false, nil
	}
	var level sql.NullInt64
	args := append([]any{pid}, stringArgs(subjects)...)
	err := t.tx.QueryRowContext(ctx,
		"SELECT MAX(level) FROM permission WHERE pid = ? AND subject IN ("+placeholders(len(subjects))+")",
		args...).Scan(&level)
	if err != nil {
		return 0, false, fmt.Errorf("reading permission level: %w", err)
	}
	if !level.Valid {
		return 0, false, nil
	}
	return access.Level(level.Int64), true, nil
}

func (t *sqliteTx) IsWhitelisted(ctx context.Context, subjects []string) (bool, error) {
	if len(subjects) == 0 {
		return false, nil
	}
	ok, err := t.exists(ctx,
		"SELECT 1 FROM create_whitelist WHERE subject IN ("+placeholders(len(subjects))+") LIMIT 1",
		stringArgs(subjects)...)
	if err != nil {
		return false, fmt.Errorf("checking whitelist: %w", err)
	}
	return ok, nil
}

func (t *sqliteTx) ReplacePermissions(ctx context.Context, pid string, rules []access.Rule) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM permission WHERE pid = ?", pid); err != nil {
		return fmt.Errorf("clearing permissions: %w", err)
	}
	for _, r := range rules {
		for _, subject := range r.Subjects {
			_, err := t.tx.ExecContext(ctx, `
				INSERT INTO permission (pid, subject, level) VALUES (?, ?, ?)
				ON CONFLICT (pid, subject) DO UPDATE SET level = MAX(level, excluded.level)`,
				pid, subject, int(r.Level))
			if err != nil {
				return fmt.Errorf("inserting permission: %w", err)
			}
		}
	}
	return nil
}

func (t *sqliteTx) Permissions(ctx context.Context, pid string) ([]access.Rule, error) {
	rows, err := t.tx.QueryContext(ctx,
		"SELECT subject, level FROM permission WHERE pid = ? ORDER BY level, subject", pid)
	if err != nil {
		return nil, fmt.Errorf("reading permissions: %w", err)
	}
	defer rows.Close()

	byLevel := map[access.Level][]string{}
	for rows.Next() {
		var (
			subject string
			level   int
		)
		if err := rows.Scan(&subject, &level); err != nil {
			return nil, fmt.Errorf("reading permission: %w", err)
		}
		byLevel[access.Level(level)] = append(byLevel[access.Level(level)], subject)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	levels := make([]access.Level, 0, len(byLevel))
	for l := range byLevel {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	rules := make([]access.Rule, 0, len(levels))
	for _, l := range levels {
		rules = append(rules, access.Rule{Subjects: byLevel[l], Level: l})
	}
	return rules, nil
}

func (t *sqliteTx) AddWhitelist(ctx context.Context, subject string) error {
	if _, err := t.tx.ExecContext(ctx, "INSERT OR IGNORE INTO create_whitelist (subject) VALUES (?)", subject); err != nil {
		return fmt.Errorf("adding whitelist subject: %w", err)
	}
	return nil
}
