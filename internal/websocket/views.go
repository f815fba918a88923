package websocket

import (
	"context"
	"log/slog"
	"sync"

	"clipboard-service/internal/models"
)

// ClipboardStore is the slice of the persistence layer the realtime core
// touches: an atomic increment-and-fetch of the visit counter and a plain
// read of it. Both are point operations; no transaction spans the core.
type ClipboardStore interface {
	IncrementVisitAndFetch(ctx context.Context, clipboardID string) (*models.Clipboard, error)
	FetchVisitCount(ctx context.Context, clipboardID string) (int64, error)
}

// ViewCounter combines the persisted historical visit count with live
// presence. Storage failures never propagate: viewing must not fail because
// the counter couldn't be incremented, so results degrade to the last known
// value, or nil when the counter was never observed.
type ViewCounter struct {
	store ClipboardStore

	mu        sync.Mutex
	lastKnown map[string]int64
}

func NewViewCounter(store ClipboardStore) *ViewCounter {
	return &ViewCounter{
		store:     store,
		lastKnown: make(map[string]int64),
	}
}

// OnJoin atomically increments the persisted visit counter and returns the
// updated entity plus its total view count. On failure the entity is nil and
// the count falls back to the last known value.
func (v *ViewCounter) OnJoin(ctx context.Context, clipboardID string) (*models.Clipboard, *int64) {
	entity, err := v.store.IncrementVisitAndFetch(ctx, clipboardID)
	if err != nil {
		slog.Warn("Failed to increment visit counter", "clipboardID", clipboardID, "error", err)
		return nil, v.LastKnown(clipboardID)
	}

	v.remember(clipboardID, entity.Visits)
	views := entity.Visits
	return entity, &views
}

// OnLeave reads the current persisted visit count, falling back to the last
// known value on failure.
func (v *ViewCounter) OnLeave(ctx context.Context, clipboardID string) *int64 {
	count, err := v.store.FetchVisitCount(ctx, clipboardID)
	if err != nil {
		slog.Warn("Failed to read visit counter", "clipboardID", clipboardID, "error", err)
		return v.LastKnown(clipboardID)
	}

	v.remember(clipboardID, count)
	return &count
}

// LastKnown returns the most recently observed visit count for the entry, or
// nil when none was ever observed.
func (v *ViewCounter) LastKnown(clipboardID string) *int64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	count, ok := v.lastKnown[clipboardID]
	if !ok {
		return nil
	}
	return &count
}

// Forget drops the cached count for a deleted entry.
func (v *ViewCounter) Forget(clipboardID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.lastKnown, clipboardID)
}

func (v *ViewCounter) remember(clipboardID string, count int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastKnown[clipboardID] = count
}
