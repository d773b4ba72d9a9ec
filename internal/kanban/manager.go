// Package kanban keeps pipelines, lanes, tickets and tags consistent: dense
// zero-based ordering, tag membership, lane totals and the board read-models.
package kanban

import (
	"context"
	"log/slog"
	"strings"

	"agencyhub/api/internal/money"
)

// LaneValueCache memoizes lane totals. Implementations report a miss with ok=false.
//
// Every Invalidate bumps the lane's generation. Set stores the value only while
// the generation still matches the one read before the total was computed, so a
// fill that raced a write is dropped instead of cached.
type LaneValueCache interface {
	Get(ctx context.Context, laneID string) (value money.Amount, ok bool, err error)
	Generation(ctx context.Context, laneID string) (int64, error)
	Set(ctx context.Context, laneID string, generation int64, value money.Amount) error
	Invalidate(ctx context.Context, laneIDs ...string) error
}

type Manager struct {
	repo   Repository
	values LaneValueCache
}

// NewManager builds a Manager. values may be nil, in which case lane totals are
// always recomputed.
func NewManager(repo Repository, values LaneValueCache) *Manager {
	return &Manager{repo: repo, values: values}
}

func (m *Manager) invalidateLanes(ctx context.Context, laneIDs ...string) {
	if m.values == nil || len(laneIDs) == 0 {
		return
	}
	if err := m.values.Invalidate(ctx, laneIDs...); err != nil {
		slog.WarnContext(ctx, "lane value cache invalidate failed", "lanes", laneIDs, "error", err)
	}
}

func cleanName(name, field string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid(field + " is required")
	}
	return name, nil
}
