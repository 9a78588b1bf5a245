package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// PositionStats is the aggregate view over the positions table, computed
// by grouping current contents rather than maintained incrementally.
type PositionStats struct {
	ByStatus map[PositionStatus]int
	// TotalPnL sums realized absolute PnL across closed positions, in
	// quote-asset units.
	TotalPnL float64
}

// Total returns the count across all statuses.
func (s PositionStats) Total() int {
	n := 0
	for _, c := range s.ByStatus {
		n += c
	}
	return n
}

// PositionStore persists positions. It is the single source of truth for
// the lifecycle engine; every monitor iteration re-reads the open set
// rather than caching rows across cycles.
type PositionStore interface {
	// Create persists a new position and assigns its surrogate ID.
	Create(ctx context.Context, pos *Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id int64) (Position, error)
	// ListOpen returns positions with status pending or active, ordered
	// by id ascending.
	ListOpen(ctx context.Context) ([]Position, error)
	// CountOpen counts pending + active positions (the capacity check).
	CountOpen(ctx context.Context) (int, error)
	ListRecent(ctx context.Context, opts ListOpts) ([]Position, error)
	// ListClosedBefore returns terminal positions closed strictly before
	// the cutoff, for archival.
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
	Stats(ctx context.Context) (PositionStats, error)
}

// TradeLogStore persists the journal of executed swaps.
type TradeLogStore interface {
	Insert(ctx context.Context, entry TradeLogEntry) error
	ListRecent(ctx context.Context, limit int) ([]TradeLogEntry, error)
	// ListBefore returns entries recorded strictly before the cutoff,
	// for archival.
	ListBefore(ctx context.Context, before time.Time) ([]TradeLogEntry, error)
}

// UserStore persists the Telegram user registry.
type UserStore interface {
	// Register inserts the user if unknown; the first registered user
	// becomes admin. Returns the stored record either way.
	Register(ctx context.Context, id int64, username string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	List(ctx context.Context) ([]User, error)
	SetNotify(ctx context.Context, id int64, enabled bool) error
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
