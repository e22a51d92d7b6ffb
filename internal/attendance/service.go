package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"rollcall/internal/syllabus"
)

// maxCodeDraws bounds the collision re-draw loop in issueCode.
const maxCodeDraws = 5

// Store is the persistence surface the service needs. *Repository implements
// it against Postgres; tests use an in-memory fake.
type Store interface {
	CreateCode(ctx context.Context, code Code) (Code, error)
	ActiveCodeExists(ctx context.Context, code string) (bool, error)
	CurrentCode(ctx context.Context, sessionID string) (*Code, error)
	DeactivateActive(ctx context.Context, sessionID string) error
	ListCodes(ctx context.Context, sessionID string) ([]Code, error)
	UpdateExpiration(ctx context.Context, codeID string, expiresAt *time.Time) (Code, error)
	InsertRecord(ctx context.Context, rec Record) (Record, error)
	RecordFor(ctx context.Context, sessionID, userID string) (*Record, error)
	ListRecords(ctx context.Context, sessionID string) ([]Record, error)
	CountByStatus(ctx context.Context, sessionID string) (present, late int, err error)
}

// Roster answers enrollment questions. Backed by the external enrollment
// service; see internal/rosterclient.
type Roster interface {
	IsEnrolled(ctx context.Context, classID, userID string) (bool, error)
	RosterSize(ctx context.Context, classID string) (int, error)
	Roster(ctx context.Context, classID string) ([]Student, error)
}

// Service coordinates the code lifecycle and check-ins for sessions.
type Service struct {
	store    Store
	sessions syllabus.Provider
	roster   Roster
	now      func() time.Time
}

// NewService creates a service.
func NewService(store Store, sessions syllabus.Provider, roster Roster) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		roster:   roster,
		now:      time.Now,
	}
}

func (s *Service) session(ctx context.Context, sessionID string) (*syllabus.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storageErr("load session", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// canManage reports whether the actor may manage attendance for the session.
func canManage(sess *syllabus.Session, issuer Actor) bool {
	return issuer.Role == RoleAdmin || (issuer.Role == RoleInstructor && issuer.ID == sess.InstructorID)
}

// CreateCode issues a fresh code for a session, deactivating any previously
// active one. opts.AutoExpire computes expiry from the creation time; a
// non-auto code with no explicit timestamp never expires.
func (s *Service) CreateCode(ctx context.Context, sessionID string, issuer Actor, opts CodeOptions) (Code, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return Code{}, err
	}
	if !canManage(sess, issuer) {
		return Code{}, ErrNotAuthorized
	}

	now := s.now().UTC()
	expiresAt, err := resolveExpiry(opts, now)
	if err != nil {
		return Code{}, err
	}

	value, err := s.issueCode(ctx)
	if err != nil {
		return Code{}, err
	}

	return s.store.CreateCode(ctx, Code{
		SessionID:  sessionID,
		Code:       value,
		IssuerID:   issuer.ID,
		AutoExpire: opts.AutoExpire,
		ExpiresAt:  expiresAt,
	})
}

func resolveExpiry(opts CodeOptions, now time.Time) (*time.Time, error) {
	if opts.AutoExpire {
		if opts.ExpirationMinutes <= 0 {
			return nil, ErrInvalidExpiration
		}
		t := now.Add(time.Duration(opts.ExpirationMinutes) * time.Minute)
		return &t, nil
	}
	if opts.ExpiresAt != nil {
		if opts.ExpiresAt.Before(now) {
			return nil, ErrInvalidExpiration
		}
		return opts.ExpiresAt, nil
	}
	// No expiration on a manual code means unlimited, matching the
	// instructor-facing "no expiry" option.
	return nil, nil
}

// issueCode draws codes until one does not collide with a currently-active
// code anywhere.
func (s *Service) issueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeDraws; i++ {
		value, err := GenerateCode()
		if err != nil {
			return "", err
		}
		taken, err := s.store.ActiveCodeExists(ctx, value)
		if err != nil {
			return "", err
		}
		if !taken {
			return value, nil
		}
	}
	return "", storageErr("issue code", errCodeSpaceExhausted)
}

var errCodeSpaceExhausted = errors.New("could not draw a non-colliding code")

// DeactivateCode turns off the session's current code. Idempotent.
func (s *Service) DeactivateCode(ctx context.Context, sessionID string, issuer Actor) error {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	if !canManage(sess, issuer) {
		return ErrNotAuthorized
	}
	return s.store.DeactivateActive(ctx, sessionID)
}

// CurrentCode returns the session's usable code, or nil when none is active
// or the active one has expired.
func (s *Service) CurrentCode(ctx context.Context, sessionID string, issuer Actor) (*Code, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canManage(sess, issuer) {
		return nil, ErrNotAuthorized
	}
	code, err := s.store.CurrentCode(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if code == nil || !IsUsable(*code, s.now()) {
		return nil, nil
	}
	return code, nil
}

// ListCodes returns the session's full code history, newest first.
func (s *Service) ListCodes(ctx context.Context, sessionID string, issuer Actor) ([]Code, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !canManage(sess, issuer) {
		return nil, ErrNotAuthorized
	}
	return s.store.ListCodes(ctx, sessionID)
}

// ExtendExpiration pushes the current code's expiry to now + additionalMinutes
// by patching it in place. When no code is active it issues a fresh
// auto-expiring one instead, so the instructor always ends up with a usable
// code.
func (s *Service) ExtendExpiration(ctx context.Context, sessionID string, issuer Actor, additionalMinutes int) (Code, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return Code{}, err
	}
	if !canManage(sess, issuer) {
		return Code{}, ErrNotAuthorized
	}
	if additionalMinutes <= 0 {
		return Code{}, ErrInvalidExpiration
	}

	now := s.now().UTC()
	current, err := s.store.CurrentCode(ctx, sessionID)
	if err != nil {
		return Code{}, err
	}
	if current == nil || !IsUsable(*current, now) {
		return s.CreateCode(ctx, sessionID, issuer, CodeOptions{
			AutoExpire:        true,
			ExpirationMinutes: additionalMinutes,
		})
	}
	newExpiry := now.Add(time.Duration(additionalMinutes) * time.Minute)
	return s.store.UpdateExpiration(ctx, current.ID, &newExpiry)
}

// CheckIn validates a student's submitted code and records their attendance.
// Single-shot per (session, student): the storage layer's uniqueness
// constraint backs the duplicate check, so concurrent submissions cannot
// both succeed.
func (s *Service) CheckIn(ctx context.Context, sessionID, userID, submittedCode string, now time.Time) (Record, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if !sess.AttendanceEnabled {
		return Record{}, ErrAttendanceDisabled
	}

	current, err := s.store.CurrentCode(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if current == nil {
		return Record{}, ErrNoActiveCode
	}
	if !IsUsable(*current, now) {
		return Record{}, ErrCodeExpired
	}
	if !strings.EqualFold(strings.TrimSpace(submittedCode), current.Code) {
		return Record{}, ErrCodeMismatch
	}

	if existing, err := s.store.RecordFor(ctx, sessionID, userID); err != nil {
		return Record{}, err
	} else if existing != nil {
		return Record{}, ErrAlreadyCheckedIn
	}

	enrolled, err := s.roster.IsEnrolled(ctx, sess.ClassID, userID)
	if err != nil {
		return Record{}, storageErr("enrollment check", err)
	}
	if !enrolled {
		return Record{}, ErrNotEnrolled
	}

	late := isLate(sess, now)
	status := StatusPresent
	if late {
		status = StatusLate
	}
	return s.store.InsertRecord(ctx, Record{
		SessionID:   sessionID,
		UserID:      userID,
		CodeID:      current.ID,
		Status:      status,
		IsLate:      late,
		CheckedInAt: now,
	})
}

// isLate applies the session's late threshold. Unconfigured start time or
// threshold defaults to not-late.
func isLate(sess *syllabus.Session, now time.Time) bool {
	if sess.AttendanceStartTime == nil || sess.LateThresholdMinutes == nil {
		return false
	}
	threshold := time.Duration(*sess.LateThresholdMinutes) * time.Minute
	return now.Sub(*sess.AttendanceStartTime) > threshold
}

// MyStatus returns the student's own record for a session, or nil if they
// have not checked in.
func (s *Service) MyStatus(ctx context.Context, sessionID, userID string) (*Record, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.RecordFor(ctx, sessionID, userID)
}
