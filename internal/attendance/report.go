package attendance

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"rollcall/internal/syllabus"
)

const statsCacheTTL = 30 * time.Second

// Reporter aggregates per-session attendance against the enrolled roster.
// Absent counts are derived, never stored. Reads are eventually consistent
// with respect to concurrent check-ins.
type Reporter struct {
	store    Store
	sessions syllabus.Provider
	roster   Roster
	cache    *redis.Client
}

// NewReporter creates a reporter. cache may be nil, which disables the stats
// cache entirely.
func NewReporter(store Store, sessions syllabus.Provider, roster Roster, cache *redis.Client) *Reporter {
	return &Reporter{store: store, sessions: sessions, roster: roster, cache: cache}
}

func statsCacheKey(sessionID string) string {
	return "rollcall:stats:" + sessionID
}

// Stats returns present/late/absent counts for a session. Callers must
// manage the session, same as the code-lifecycle operations. An empty roster
// yields all zeros; a roster smaller than the recorded check-ins is a
// data-integrity fault, not something to clamp silently.
func (r *Reporter) Stats(ctx context.Context, sessionID string, issuer Actor) (Stats, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return Stats{}, storageErr("load session", err)
	}
	if sess == nil {
		return Stats{}, ErrSessionNotFound
	}
	if !canManage(sess, issuer) {
		return Stats{}, ErrNotAuthorized
	}

	if cached, ok := r.cachedStats(ctx, sessionID); ok {
		return cached, nil
	}

	stats, err := r.computeStats(ctx, sessionID, sess.ClassID)
	if err != nil {
		return Stats{}, err
	}
	r.storeStats(ctx, stats)
	return stats, nil
}

func (r *Reporter) computeStats(ctx context.Context, sessionID, classID string) (Stats, error) {
	present, late, err := r.store.CountByStatus(ctx, sessionID)
	if err != nil {
		return Stats{}, err
	}
	total, err := r.roster.RosterSize(ctx, classID)
	if err != nil {
		return Stats{}, storageErr("roster size", err)
	}
	absent := total - present - late
	if absent < 0 {
		return Stats{}, ErrRosterIntegrity
	}
	return Stats{
		SessionID:     sessionID,
		TotalStudents: total,
		PresentCount:  present,
		LateCount:     late,
		AbsentCount:   absent,
	}, nil
}

func (r *Reporter) cachedStats(ctx context.Context, sessionID string) (Stats, bool) {
	if r.cache == nil {
		return Stats{}, false
	}
	raw, err := r.cache.Get(ctx, statsCacheKey(sessionID)).Bytes()
	if err != nil {
		return Stats{}, false
	}
	var stats Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return Stats{}, false
	}
	return stats, true
}

func (r *Reporter) storeStats(ctx context.Context, stats Stats) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, statsCacheKey(stats.SessionID), raw, statsCacheTTL).Err(); err != nil {
		log.Printf("stats cache write failed for %s: %v", stats.SessionID, err)
	}
}

// Refresh recomputes and re-caches stats for a session. Called by the worker
// after each check-in so instructor dashboards see fresh numbers without
// hammering Postgres.
func (r *Reporter) Refresh(ctx context.Context, sessionID string) error {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return storageErr("load session", err)
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	stats, err := r.computeStats(ctx, sessionID, sess.ClassID)
	if err != nil {
		return err
	}
	r.storeStats(ctx, stats)
	return nil
}

// Report returns every check-in for a session joined with student identity
// from the roster. Students without a record are appended as derived ABSENT
// rows so the instructor view covers the whole roster. Callers must manage
// the session.
func (r *Reporter) Report(ctx context.Context, sessionID string, issuer Actor) ([]ReportRow, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, storageErr("load session", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if !canManage(sess, issuer) {
		return nil, ErrNotAuthorized
	}

	records, err := r.store.ListRecords(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	students, err := r.roster.Roster(ctx, sess.ClassID)
	if err != nil {
		return nil, storageErr("roster", err)
	}

	names := make(map[string]string, len(students))
	for _, st := range students {
		names[st.ID] = st.Name
	}

	rows := make([]ReportRow, 0, len(students))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		seen[rec.UserID] = true
		rows = append(rows, ReportRow{Record: rec, StudentName: names[rec.UserID]})
	}
	for _, st := range students {
		if seen[st.ID] {
			continue
		}
		rows = append(rows, ReportRow{
			Record:      Record{SessionID: sessionID, UserID: st.ID, Status: StatusAbsent},
			StudentName: st.Name,
		})
	}
	return rows, nil
}
