package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/sweeney/study-station/internal/logic"
)

const (
	// FinishedRetention is how long ended or cancelled sessions stay in memory.
	FinishedRetention = 24 * time.Hour
	cleanupInterval   = 30 * time.Minute
	signalKey         = "signal"
)

type memSession struct {
	session      logic.Session
	measurements []logic.Measurement
}

// Memory is a store kept in process memory. Active sessions never expire;
// finished ones are dropped after FinishedRetention.
type Memory struct {
	deviceID string

	// mu serializes read-modify-write of cached entries.
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemory creates an empty in-memory store.
func NewMemory(deviceID string, retention time.Duration) *Memory {
	if retention <= 0 {
		retention = FinishedRetention
	}
	return &Memory{
		deviceID: deviceID,
		cache:    gocache.New(retention, cleanupInterval),
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (m *Memory) load(id string) (*memSession, bool) {
	v, ok := m.cache.Get(sessionKey(id))
	if !ok {
		return nil, false
	}
	s, ok := v.(*memSession)
	return s, ok
}

// CreateSession stores a new active session.
func (m *Memory) CreateSession(_ context.Context, startedAt time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.cache.Set(sessionKey(id), &memSession{session: logic.Session{
		ID:        id,
		DeviceID:  m.deviceID,
		StartedAt: startedAt,
		Status:    logic.SessionActive,
	}}, gocache.NoExpiration)
	return id, nil
}

// UpdatePhase replaces the latest signal.
func (m *Memory) UpdatePhase(_ context.Context, sig logic.SyncSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Set(signalKey, sig, gocache.NoExpiration)
	if sig.Phase == logic.PhaseCancelled {
		if s, ok := m.load(sig.SessionID); ok && s.session.Status == logic.SessionActive {
			s.session.Status = logic.SessionCancelled
			s.session.EndedAt = sig.UpdatedAt
			m.cache.Set(sessionKey(sig.SessionID), s, gocache.DefaultExpiration)
		}
	}
	return nil
}

// LatestSignal returns the most recent signal.
func (m *Memory) LatestSignal(_ context.Context) (logic.SyncSignal, error) {
	v, ok := m.cache.Get(signalKey)
	if !ok {
		return logic.SyncSignal{}, ErrNotFound
	}
	sig, ok := v.(logic.SyncSignal)
	if !ok {
		return logic.SyncSignal{}, fmt.Errorf("latest signal: unexpected %T", v)
	}
	return sig, nil
}

// AppendMeasurement adds a measurement to its session.
func (m *Memory) AppendMeasurement(_ context.Context, meas logic.Measurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(meas.SessionID)
	if !ok {
		return fmt.Errorf("append %s measurement: session %s: %w", meas.Kind, meas.SessionID, ErrNotFound)
	}
	s.measurements = append(s.measurements, meas)
	return nil
}

// Measurements returns a copy of a session's measurements.
func (m *Memory) Measurements(_ context.Context, sessionID string) ([]logic.Measurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(sessionID)
	if !ok {
		return nil, fmt.Errorf("measurements: session %s: %w", sessionID, ErrNotFound)
	}
	return append([]logic.Measurement(nil), s.measurements...), nil
}

// Session returns one session.
func (m *Memory) Session(_ context.Context, id string) (logic.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(id)
	if !ok {
		return logic.Session{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s.session, nil
}

// FinalizeSession ends a session and starts its retention period.
func (m *Memory) FinalizeSession(_ context.Context, id string, totals logic.Totals, endedAt time.Time) (logic.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.load(id)
	if !ok {
		return logic.Report{}, fmt.Errorf("finalize session %s: %w", id, ErrNotFound)
	}
	s.session.Status = logic.SessionEnded
	s.session.EndedAt = endedAt
	s.session.Totals = totals
	m.cache.Set(sessionKey(id), s, gocache.DefaultExpiration)
	return logic.BuildReport(s.session, s.measurements), nil
}

// Close flushes the cache.
func (m *Memory) Close() error {
	m.cache.Flush()
	return nil
}
