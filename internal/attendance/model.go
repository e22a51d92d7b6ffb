package attendance

import "time"

// Status classifies an attendance record.
type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusLate    Status = "LATE"
	StatusAbsent  Status = "ABSENT"
)

// Code is a short human-enterable code that authorizes check-in for a session.
// At most one code per session is active at any instant.
type Code struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Code       string     `json:"code"`
	IssuerID   string     `json:"issuer_id"`
	IsActive   bool       `json:"is_active"`
	AutoExpire bool       `json:"auto_expire"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Record is a student's check-in for a session. Records are written once and
// never mutated; ABSENT is derived at reporting time, not stored.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	CodeID      string    `json:"attendance_code_id"`
	Status      Status    `json:"status"`
	IsLate      bool      `json:"is_late"`
	CheckedInAt time.Time `json:"checked_in_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// CodeOptions controls expiry for a new code.
type CodeOptions struct {
	AutoExpire        bool
	ExpirationMinutes int
	ExpiresAt         *time.Time
}

// Actor identifies the caller of an engine operation. The engine never reads
// ambient identity; callers pass it explicitly.
type Actor struct {
	ID   string
	Role string
}

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Student is a roster entry supplied by the enrollment service.
type Student struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Stats summarizes attendance for one session. AbsentCount is always derived
// from the roster size, never stored.
type Stats struct {
	SessionID     string `json:"session_id"`
	TotalStudents int    `json:"total_students"`
	PresentCount  int    `json:"present_count"`
	LateCount     int    `json:"late_count"`
	AbsentCount   int    `json:"absent_count"`
}

// ReportRow joins a record with the student's identity for instructor views.
type ReportRow struct {
	Record
	StudentName string `json:"student_name,omitempty"`
}
