// Package store persists sessions, phase signals and measurements.
//
// The primary device owns the store (SQLite, or in memory when no database
// is configured). The secondary device reaches the same data through the
// primary's HTTP API with Remote.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/study-station/internal/logic"
)

// ErrNotFound is returned when a session or signal does not exist.
var ErrNotFound = errors.New("not found")

// SignalStore is the part of the store shared by both devices.
type SignalStore interface {
	UpdatePhase(ctx context.Context, sig logic.SyncSignal) error
	LatestSignal(ctx context.Context) (logic.SyncSignal, error)
	AppendMeasurement(ctx context.Context, m logic.Measurement) error
}

// Store is the full store owned by the primary device.
type Store interface {
	SignalStore
	CreateSession(ctx context.Context, startedAt time.Time) (string, error)
	FinalizeSession(ctx context.Context, id string, totals logic.Totals, endedAt time.Time) (logic.Report, error)
	Session(ctx context.Context, id string) (logic.Session, error)
	Measurements(ctx context.Context, sessionID string) ([]logic.Measurement, error)
	Close() error
}
