package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// Repository persists attendance codes and records in Postgres.
//
// Two constraints back the engine's invariants at the storage layer rather
// than in application code: a partial unique index on (session_id) WHERE
// is_active keeps at most one active code per session, and a unique
// constraint on (session_id, user_id) keeps check-ins single-shot.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// errActiveCodeConflict signals that a concurrent creator won the partial
// unique index; CreateCode retries the deactivate+insert once.
var errActiveCodeConflict = errors.New("active code conflict")

// CreateCode deactivates the session's current active code, if any, and
// inserts the new one as active, atomically.
func (r *Repository) CreateCode(ctx context.Context, code Code) (Code, error) {
	for attempt := 0; attempt < 2; attempt++ {
		created, err := r.createCodeTx(ctx, code)
		if err == nil {
			return created, nil
		}
		if errors.Is(err, errActiveCodeConflict) {
			continue
		}
		return Code{}, err
	}
	return Code{}, storageErr("create code", errActiveCodeConflict)
}

func (r *Repository) createCodeTx(ctx context.Context, code Code) (Code, error) {
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Code{}, storageErr("begin create code", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE attendance_codes
		SET is_active = FALSE, updated_at = NOW()
		WHERE session_id = $1 AND is_active
	`, code.SessionID); err != nil {
		return Code{}, storageErr("deactivate previous code", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO attendance_codes (id, session_id, code, issuer_id, is_active, auto_expire, expires_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		RETURNING created_at, updated_at
	`, code.ID, code.SessionID, code.Code, code.IssuerID, code.AutoExpire, code.ExpiresAt)
	if err := row.Scan(&code.CreatedAt, &code.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Code{}, errActiveCodeConflict
		}
		return Code{}, storageErr("insert code", err)
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return Code{}, errActiveCodeConflict
		}
		return Code{}, storageErr("commit create code", err)
	}
	code.IsActive = true
	return code, nil
}

// ActiveCodeExists reports whether any session currently has the given code
// active. Used by the generator's collision re-draw loop.
func (r *Repository) ActiveCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM attendance_codes WHERE code = $1 AND is_active)
	`, code).Scan(&exists)
	if err != nil {
		return false, storageErr("active code exists", err)
	}
	return exists, nil
}

// CurrentCode returns the active code row for a session, or nil. Expiry is
// evaluated by the caller; an active-but-expired row is still returned.
func (r *Repository) CurrentCode(ctx context.Context, sessionID string) (*Code, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, code, issuer_id, is_active, auto_expire, expires_at, created_at, updated_at
		FROM attendance_codes
		WHERE session_id = $1 AND is_active
	`, sessionID)
	var c Code
	if err := row.Scan(&c.ID, &c.SessionID, &c.Code, &c.IssuerID, &c.IsActive, &c.AutoExpire,
		&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("current code", err)
	}
	return &c, nil
}

// DeactivateActive clears the active flag for a session's current code.
// No-op when none is active.
func (r *Repository) DeactivateActive(ctx context.Context, sessionID string) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE attendance_codes
		SET is_active = FALSE, updated_at = NOW()
		WHERE session_id = $1 AND is_active
	`, sessionID); err != nil {
		return storageErr("deactivate code", err)
	}
	return nil
}

// ListCodes returns the full code history for a session, newest first.
func (r *Repository) ListCodes(ctx context.Context, sessionID string) ([]Code, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, code, issuer_id, is_active, auto_expire, expires_at, created_at, updated_at
		FROM attendance_codes
		WHERE session_id = $1
		ORDER BY created_at DESC
	`, sessionID)
	if err != nil {
		return nil, storageErr("list codes", err)
	}
	defer rows.Close()
	var res []Code
	for rows.Next() {
		var c Code
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Code, &c.IssuerID, &c.IsActive, &c.AutoExpire,
			&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, storageErr("scan code", err)
		}
		res = append(res, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list codes", err)
	}
	return res, nil
}

// UpdateExpiration patches the expiry of an existing code in place.
func (r *Repository) UpdateExpiration(ctx context.Context, codeID string, expiresAt *time.Time) (Code, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE attendance_codes
		SET expires_at = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, session_id, code, issuer_id, is_active, auto_expire, expires_at, created_at, updated_at
	`, codeID, expiresAt)
	var c Code
	if err := row.Scan(&c.ID, &c.SessionID, &c.Code, &c.IssuerID, &c.IsActive, &c.AutoExpire,
		&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Code{}, ErrNoActiveCode
		}
		return Code{}, storageErr("update expiration", err)
	}
	return c, nil
}

// DeactivateExpired clears the active flag on codes whose expiry has passed.
// Run by the worker sweep; check-in never depends on it since expiry is
// evaluated at read time.
func (r *Repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_codes
		SET is_active = FALSE, updated_at = NOW()
		WHERE is_active AND expires_at IS NOT NULL AND expires_at < $1
	`, now)
	if err != nil {
		return 0, storageErr("deactivate expired", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// InsertRecord writes a check-in. A duplicate (session_id, user_id) insert
// surfaces as ErrAlreadyCheckedIn, which closes the concurrent-submission
// race without application-level locking.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, session_id, user_id, attendance_code_id, status, is_late, checked_in_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rec.ID, rec.SessionID, rec.UserID, rec.CodeID, rec.Status, rec.IsLate, rec.CheckedInAt)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrAlreadyCheckedIn
		}
		return Record{}, storageErr("insert record", err)
	}
	return rec, nil
}

// RecordFor returns the student's record for a session, or nil.
func (r *Repository) RecordFor(ctx context.Context, sessionID, userID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, user_id, attendance_code_id, status, is_late, checked_in_at, created_at
		FROM attendance_records
		WHERE session_id = $1 AND user_id = $2
	`, sessionID, userID)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.CodeID, &rec.Status,
		&rec.IsLate, &rec.CheckedInAt, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr("record for", err)
	}
	return &rec, nil
}

// ListRecords returns all check-ins for a session, earliest first.
func (r *Repository) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, attendance_code_id, status, is_late, checked_in_at, created_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY checked_in_at ASC
	`, sessionID)
	if err != nil {
		return nil, storageErr("list records", err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.CodeID, &rec.Status,
			&rec.IsLate, &rec.CheckedInAt, &rec.CreatedAt); err != nil {
			return nil, storageErr("scan record", err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list records", err)
	}
	return res, nil
}

// CountByStatus returns present and late counts for a session.
func (r *Repository) CountByStatus(ctx context.Context, sessionID string) (present, late int, err error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM attendance_records
		WHERE session_id = $1
	`, sessionID, StatusPresent, StatusLate)
	if err := row.Scan(&present, &late); err != nil {
		return 0, 0, storageErr("count by status", err)
	}
	return present, late, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
