package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/syllabus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeStore implements attendance.Store in memory with the same constraints
// the Postgres schema enforces.
type fakeStore struct {
	mu      sync.Mutex
	codes   []attendance.Code
	records []attendance.Record
}

func (f *fakeStore) CreateCode(_ context.Context, code attendance.Code) (attendance.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.codes {
		if f.codes[i].SessionID == code.SessionID {
			f.codes[i].IsActive = false
		}
	}
	code.ID = uuid.NewString()
	code.IsActive = true
	code.CreatedAt = time.Now().UTC()
	code.UpdatedAt = code.CreatedAt
	f.codes = append(f.codes, code)
	return code, nil
}

func (f *fakeStore) ActiveCodeExists(_ context.Context, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.codes {
		if c.IsActive && c.Code == value {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CurrentCode(_ context.Context, sessionID string) (*attendance.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.codes {
		if f.codes[i].SessionID == sessionID && f.codes[i].IsActive {
			c := f.codes[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) DeactivateActive(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.codes {
		if f.codes[i].SessionID == sessionID {
			f.codes[i].IsActive = false
		}
	}
	return nil
}

func (f *fakeStore) ListCodes(_ context.Context, sessionID string) ([]attendance.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []attendance.Code
	for i := len(f.codes) - 1; i >= 0; i-- {
		if f.codes[i].SessionID == sessionID {
			res = append(res, f.codes[i])
		}
	}
	return res, nil
}

func (f *fakeStore) UpdateExpiration(_ context.Context, codeID string, expiresAt *time.Time) (attendance.Code, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.codes {
		if f.codes[i].ID == codeID {
			f.codes[i].ExpiresAt = expiresAt
			return f.codes[i], nil
		}
	}
	return attendance.Code{}, attendance.ErrNoActiveCode
}

func (f *fakeStore) InsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.records {
		if existing.SessionID == rec.SessionID && existing.UserID == rec.UserID {
			return attendance.Record{}, attendance.ErrAlreadyCheckedIn
		}
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now().UTC()
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeStore) RecordFor(_ context.Context, sessionID, userID string) (*attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].SessionID == sessionID && f.records[i].UserID == userID {
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListRecords(_ context.Context, sessionID string) ([]attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []attendance.Record
	for _, rec := range f.records {
		if rec.SessionID == sessionID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (f *fakeStore) CountByStatus(_ context.Context, sessionID string) (present, late int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.SessionID != sessionID {
			continue
		}
		switch rec.Status {
		case attendance.StatusPresent:
			present++
		case attendance.StatusLate:
			late++
		}
	}
	return present, late, nil
}

type fakeSessions map[string]*syllabus.Session

func (f fakeSessions) Get(_ context.Context, id string) (*syllabus.Session, error) {
	return f[id], nil
}

type fakeRoster []attendance.Student

func (f fakeRoster) IsEnrolled(_ context.Context, _, userID string) (bool, error) {
	for _, st := range f {
		if st.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeRoster) RosterSize(_ context.Context, _ string) (int, error) {
	return len(f), nil
}

func (f fakeRoster) Roster(_ context.Context, _ string) ([]attendance.Student, error) {
	return f, nil
}

func testRouter(t *testing.T) (*gin.Engine, config.App) {
	t.Helper()
	cfg := config.App{
		JWTIssuer:       "rollcall-test",
		JWTSigningKey:   "test-signing-key",
		AccessTTL:       time.Hour,
		RefreshTTL:      24 * time.Hour,
		RateLimitPerMin: 10000,
	}

	start := time.Now().UTC().Add(-5 * time.Minute)
	threshold := 15
	sessions := fakeSessions{
		"sess-1": {
			ID:                   "sess-1",
			ClassID:              "class-1",
			InstructorID:         "teacher-1",
			AttendanceEnabled:    true,
			AttendanceStartTime:  &start,
			LateThresholdMinutes: &threshold,
		},
	}
	roster := fakeRoster{{ID: "student-1", Name: "Ada"}, {ID: "student-2", Name: "Grace"}}
	store := &fakeStore{}

	svc := attendance.NewService(store, sessions, roster)
	reporter := attendance.NewReporter(store, sessions, roster, nil)
	q := queue.NewInMemory(16)

	health := func(context.Context) (bool, gin.H) {
		return true, gin.H{"status": "ok"}
	}
	return NewServer(cfg, svc, reporter, q, health).Router(), cfg
}

func bearerToken(t *testing.T, cfg config.App, subject, role string) string {
	t.Helper()
	tokens, err := auth.Issue(subject, role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + tokens.AccessToken
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	r, _ := testRouter(t)
	rr := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	r, cfg := testRouter(t)

	rr := doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/codes", "", gin.H{"auto_expire": true, "expiration_minutes": 30})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rr.Code)
	}

	studentTok := bearerToken(t, cfg, "student-1", attendance.RoleStudent)
	rr = doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/codes", studentTok, gin.H{"auto_expire": true, "expiration_minutes": 30})
	if rr.Code != http.StatusForbidden {
		t.Errorf("student on manage route: status = %d, want 403", rr.Code)
	}
}

func TestCheckInFlow(t *testing.T) {
	r, cfg := testRouter(t)
	teacherTok := bearerToken(t, cfg, "teacher-1", attendance.RoleInstructor)
	studentTok := bearerToken(t, cfg, "student-1", attendance.RoleStudent)

	rr := doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/codes", teacherTok, gin.H{"auto_expire": true, "expiration_minutes": 30})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create code: status = %d body = %s", rr.Code, rr.Body.String())
	}
	var created attendance.Code
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode created code: %v", err)
	}

	rr = doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/checkins", studentTok, gin.H{"code": created.Code})
	if rr.Code != http.StatusCreated {
		t.Fatalf("check-in: status = %d body = %s", rr.Code, rr.Body.String())
	}
	var rec attendance.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.Status != attendance.StatusPresent {
		t.Errorf("status = %s, want PRESENT", rec.Status)
	}

	rr = doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/checkins", studentTok, gin.H{"code": created.Code})
	if rr.Code != http.StatusConflict {
		t.Errorf("second check-in: status = %d, want 409", rr.Code)
	}

	rr = doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/checkins", bearerToken(t, cfg, "student-2", attendance.RoleStudent), gin.H{"code": "WRONG123"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("wrong code: status = %d, want 422", rr.Code)
	}

	rr = doJSON(t, r, http.MethodGet, "/v1/sessions/sess-1/checkins/me", studentTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("my status: status = %d", rr.Code)
	}
	var mine struct {
		CheckedIn bool   `json:"checked_in"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &mine); err != nil {
		t.Fatalf("decode my status: %v", err)
	}
	if !mine.CheckedIn || mine.Status != string(attendance.StatusPresent) {
		t.Errorf("my status = %+v", mine)
	}
}

func TestStatsEndpoint(t *testing.T) {
	r, cfg := testRouter(t)
	teacherTok := bearerToken(t, cfg, "teacher-1", attendance.RoleInstructor)
	studentTok := bearerToken(t, cfg, "student-1", attendance.RoleStudent)

	rr := doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/codes", teacherTok, gin.H{})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create code: status = %d", rr.Code)
	}
	var created attendance.Code
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode code: %v", err)
	}
	if rr := doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/checkins", studentTok, gin.H{"code": created.Code}); rr.Code != http.StatusCreated {
		t.Fatalf("check-in: status = %d", rr.Code)
	}

	rr = doJSON(t, r, http.MethodGet, "/v1/sessions/sess-1/stats", teacherTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats: status = %d body = %s", rr.Code, rr.Body.String())
	}
	var stats attendance.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TotalStudents != 2 || stats.PresentCount != 1 || stats.AbsentCount != 1 {
		t.Errorf("stats = %+v", stats)
	}

	rr = doJSON(t, r, http.MethodGet, "/v1/sessions/sess-1/stats", studentTok, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("student stats: status = %d, want 403", rr.Code)
	}

	otherTok := bearerToken(t, cfg, "teacher-2", attendance.RoleInstructor)
	rr = doJSON(t, r, http.MethodGet, "/v1/sessions/sess-1/stats", otherTok, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("non-owning instructor stats: status = %d, want 403", rr.Code)
	}
	rr = doJSON(t, r, http.MethodGet, "/v1/sessions/sess-1/report", otherTok, nil)
	if rr.Code != http.StatusForbidden {
		t.Errorf("non-owning instructor report: status = %d, want 403", rr.Code)
	}
}

func TestCurrentCodeEndpoint(t *testing.T) {
	r, cfg := testRouter(t)
	teacherTok := bearerToken(t, cfg, "teacher-1", attendance.RoleInstructor)

	rr := doJSON(t, r, http.MethodGet, "/v1/sessions/sess-1/codes/current", teacherTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("current code: status = %d", rr.Code)
	}
	var empty struct {
		Code *attendance.Code `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &empty); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if empty.Code != nil {
		t.Errorf("expected no current code, got %+v", empty.Code)
	}

	if rr := doJSON(t, r, http.MethodPost, "/v1/sessions/sess-1/codes", teacherTok, gin.H{"auto_expire": true, "expiration_minutes": 10}); rr.Code != http.StatusCreated {
		t.Fatalf("create code: status = %d", rr.Code)
	}

	rr = doJSON(t, r, http.MethodGet, "/v1/sessions/sess-1/codes/current", teacherTok, nil)
	var current struct {
		Code             *attendance.Code `json:"code"`
		RemainingSeconds int              `json:"remaining_seconds"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &current); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if current.Code == nil || current.RemainingSeconds <= 0 || current.RemainingSeconds > 600 {
		t.Errorf("current = %+v", current)
	}
}
