// Package syllabus reads session (syllabus item) configuration. The engine
// consumes this configuration but does not own it; session CRUD lives in the
// course service.
package syllabus

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Session is a scheduled unit of a class that attendance is tracked against.
type Session struct {
	ID                   string     `json:"id"`
	ClassID              string     `json:"class_id"`
	Title                string     `json:"title,omitempty"`
	InstructorID         string     `json:"instructor_id"`
	AttendanceEnabled    bool       `json:"attendance_enabled"`
	AttendanceStartTime  *time.Time `json:"attendance_start_time,omitempty"`
	AttendanceEndTime    *time.Time `json:"attendance_end_time,omitempty"`
	LateThresholdMinutes *int       `json:"late_threshold_minutes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Provider resolves sessions by id. Get returns nil when the session does not
// exist.
type Provider interface {
	Get(ctx context.Context, id string) (*Session, error)
}

// Repository is a Postgres-backed Provider over the sessions table.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns a single session by id, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, title, instructor_id, attendance_enabled,
		       attendance_start_time, attendance_end_time, late_threshold_minutes, created_at
		FROM sessions WHERE id = $1
	`, id)
	var (
		s     Session
		title sql.NullString
	)
	if err := row.Scan(&s.ID, &s.ClassID, &title, &s.InstructorID, &s.AttendanceEnabled,
		&s.AttendanceStartTime, &s.AttendanceEndTime, &s.LateThresholdMinutes, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Title = title.String
	return &s, nil
}
