package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"stacnav/pkg/models"
)

// Repo is an append-only log of guarded navigations. It never stores
// catalog payloads.
type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) Add(ctx context.Context, entry models.NavigationEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	var redirect any
	if entry.Redirect != "" {
		redirect = entry.Redirect
	}

	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO navigation (session_id, from_path, to_path, redirect, prefetched, failed, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.SessionID, entry.FromPath, entry.ToPath, redirect, entry.Prefetched, entry.Failed, entry.At)
	if err != nil {
		return fmt.Errorf("insert navigation: %w", err)
	}
	return nil
}

// List returns a session's navigations, newest first, and the total count.
func (r *Repo) List(ctx context.Context, sessionID string, limit, offset int) ([]models.NavigationEntry, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM navigation WHERE session_id = ?
	`, sessionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count navigation: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, session_id, from_path, to_path, redirect, prefetched, failed, at
		FROM navigation
		WHERE session_id = ?
		ORDER BY at DESC, id DESC
		LIMIT ? OFFSET ?
	`, sessionID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list navigation: %w", err)
	}
	defer rows.Close()

	out := make([]models.NavigationEntry, 0, limit)
	for rows.Next() {
		var entry models.NavigationEntry
		var redirect sql.NullString

		if err := rows.Scan(
			&entry.ID, &entry.SessionID, &entry.FromPath, &entry.ToPath,
			&redirect, &entry.Prefetched, &entry.Failed, &entry.At,
		); err != nil {
			return nil, 0, fmt.Errorf("scan navigation: %w", err)
		}
		entry.Redirect = redirect.String
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows navigation: %w", err)
	}

	return out, total, nil
}
