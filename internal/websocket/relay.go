package websocket

import (
	"log/slog"

	"clipboard-service/internal/models"
)

// Relay bridges successful persistence writes into broadcasts. The CRUD
// layer calls it after every durable commit; it resolves the affected
// clipboard topic and, for owned entries, the owner's dashboard topic.
type Relay struct {
	hub   *Hub
	views *ViewCounter
}

func NewRelay(hub *Hub, views *ViewCounter) *Relay {
	return &Relay{hub: hub, views: views}
}

// AnnounceUpdate broadcasts the full updated entity to everyone watching the
// entry and to the owner's dashboard.
func (r *Relay) AnnounceUpdate(entity *models.Clipboard) {
	msg, err := NewUpdateMessage(entity)
	if err != nil {
		slog.Error("Failed to build update message", "clipboardID", entity.ID.Hex(), "error", err)
		return
	}

	r.hub.Broadcast(entity.ID.Hex(), msg)
	if owner := entity.OwnerHex(); owner != "" {
		r.hub.Broadcast(UserTopic(owner), msg)
	}
}

// AnnounceDelete broadcasts a deletion notice. Watchers are not evicted from
// the topic; clients are expected to navigate away on their own.
func (r *Relay) AnnounceDelete(clipboardID, ownerID string) {
	msg, err := NewDeletedMessage(clipboardID)
	if err != nil {
		slog.Error("Failed to build deleted message", "clipboardID", clipboardID, "error", err)
		return
	}

	r.hub.Broadcast(clipboardID, msg)
	if ownerID != "" {
		r.hub.Broadcast(UserTopic(ownerID), msg)
	}

	r.views.Forget(clipboardID)
}
