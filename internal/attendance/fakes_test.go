package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/syllabus"
)

// memStore mirrors the Postgres repository's constraints in memory: one
// active code per session, one record per (session, user).
type memStore struct {
	mu      sync.Mutex
	codes   []Code
	records []Record
}

func newMemStore() *memStore { return &memStore{} }

func (m *memStore) CreateCode(_ context.Context, code Code) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for i := range m.codes {
		if m.codes[i].SessionID == code.SessionID && m.codes[i].IsActive {
			m.codes[i].IsActive = false
			m.codes[i].UpdatedAt = now
		}
	}
	if code.ID == "" {
		code.ID = uuid.NewString()
	}
	code.IsActive = true
	code.CreatedAt = now
	code.UpdatedAt = now
	m.codes = append(m.codes, code)
	return code, nil
}

func (m *memStore) ActiveCodeExists(_ context.Context, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.codes {
		if c.IsActive && c.Code == value {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CurrentCode(_ context.Context, sessionID string) (*Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.codes {
		if m.codes[i].SessionID == sessionID && m.codes[i].IsActive {
			c := m.codes[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) DeactivateActive(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.codes {
		if m.codes[i].SessionID == sessionID && m.codes[i].IsActive {
			m.codes[i].IsActive = false
			m.codes[i].UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (m *memStore) ListCodes(_ context.Context, sessionID string) ([]Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Code
	for i := len(m.codes) - 1; i >= 0; i-- {
		if m.codes[i].SessionID == sessionID {
			res = append(res, m.codes[i])
		}
	}
	return res, nil
}

func (m *memStore) UpdateExpiration(_ context.Context, codeID string, expiresAt *time.Time) (Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.codes {
		if m.codes[i].ID == codeID {
			m.codes[i].ExpiresAt = expiresAt
			m.codes[i].UpdatedAt = time.Now().UTC()
			return m.codes[i], nil
		}
	}
	return Code{}, ErrNoActiveCode
}

func (m *memStore) InsertRecord(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.records {
		if existing.SessionID == rec.SessionID && existing.UserID == rec.UserID {
			return Record{}, ErrAlreadyCheckedIn
		}
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memStore) RecordFor(_ context.Context, sessionID, userID string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].SessionID == sessionID && m.records[i].UserID == userID {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListRecords(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Record
	for _, rec := range m.records {
		if rec.SessionID == sessionID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (m *memStore) CountByStatus(_ context.Context, sessionID string) (present, late int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.SessionID != sessionID {
			continue
		}
		switch rec.Status {
		case StatusPresent:
			present++
		case StatusLate:
			late++
		}
	}
	return present, late, nil
}

func (m *memStore) activeCodes(sessionID string) []Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Code
	for _, c := range m.codes {
		if c.SessionID == sessionID && c.IsActive {
			res = append(res, c)
		}
	}
	return res
}

type memSessions struct {
	sessions map[string]*syllabus.Session
}

func (m *memSessions) Get(_ context.Context, id string) (*syllabus.Session, error) {
	return m.sessions[id], nil
}

type memRoster struct {
	students map[string][]Student // classID -> roster
	sizes    map[string]int       // overrides len(students) when set
}

func (m *memRoster) IsEnrolled(_ context.Context, classID, userID string) (bool, error) {
	for _, st := range m.students[classID] {
		if st.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRoster) RosterSize(_ context.Context, classID string) (int, error) {
	if m.sizes != nil {
		if n, ok := m.sizes[classID]; ok {
			return n, nil
		}
	}
	return len(m.students[classID]), nil
}

func (m *memRoster) Roster(_ context.Context, classID string) ([]Student, error) {
	return m.students[classID], nil
}
