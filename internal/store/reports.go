package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/scoutbot/internal/hooks"
)

// ReportEntry records one delivered report.
type ReportEntry struct {
	ID        string
	UserID    string
	Subject   string
	Via       string // "download" | "email"
	Filename  string
	CreatedAt time.Time
}

// ReportLog keeps an audit trail of delivered reports.
type ReportLog struct {
	db *DB
}

// NewReportLog creates a report log over db.
func NewReportLog(db *DB) *ReportLog {
	return &ReportLog{db: db}
}

// Record stores e. ID and CreatedAt are filled in when empty.
func (l *ReportLog) Record(ctx context.Context, e ReportEntry) (ReportEntry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.sql.ExecContext(ctx,
		`INSERT INTO reports (id, user_id, subject, via, filename, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Subject, e.Via, e.Filename, e.CreatedAt.Format(time.DateTime),
	)
	if err != nil {
		return e, fmt.Errorf("record report for %s: %w", e.UserID, err)
	}
	return e, nil
}

// ForUser returns the newest reports of userID first, at most limit rows
// (all when limit <= 0).
func (l *ReportLog) ForUser(ctx context.Context, userID string, limit int) ([]ReportEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.sql.QueryContext(ctx,
		`SELECT id, user_id, subject, via, filename, created_at FROM reports
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports of %s: %w", userID, err)
	}
	defer rows.Close()

	var out []ReportEntry
	for rows.Next() {
		var e ReportEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Subject, &e.Via, &e.Filename, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Hook returns a report_delivered handler that records each delivery.
func (l *ReportLog) Hook() hooks.Handler {
	return func(ctx context.Context, p hooks.Payload) error {
		str := func(k string) string {
			v, _ := p.Data[k].(string)
			return v
		}
		_, err := l.Record(ctx, ReportEntry{
			UserID:   str("user"),
			Subject:  str("subject"),
			Via:      str("via"),
			Filename: str("file"),
		})
		return err
	}
}
