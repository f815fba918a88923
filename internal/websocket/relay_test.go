package websocket

import (
	"context"
	"encoding/json"
	"testing"

	"clipboard-service/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRelayAnnounceUpdate(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(store)
	go hub.Run()
	defer hub.Stop()

	relay := NewRelay(hub, hub.views)

	owner := primitive.NewObjectID()
	entity := &models.Clipboard{
		ID:      primitive.NewObjectID(),
		Title:   "notes",
		Content: "hello",
		Owner:   &owner,
	}
	id := entity.ID.Hex()

	viewer := NewClient(hub, nil, "")
	dashboard := NewClient(hub, nil, owner.Hex())
	hub.register <- viewer
	hub.register <- dashboard

	hub.inbound <- inboundEvent(t, viewer, MessageTypeJoinClipboard, ClipboardRoomData{ClipboardID: id})
	recvViewers(t, viewer)
	hub.inbound <- inboundEvent(t, dashboard, MessageTypeJoinUser, UserRoomData{UserID: owner.Hex()})

	relay.AnnounceUpdate(entity)

	// Everyone watching the entry gets the full entity
	for _, c := range []*Client{viewer, dashboard} {
		msg := recvMessage(t, c)
		if msg.Type != MessageTypeClipboardUpdate {
			t.Fatalf("Expected clipboard:update, got %s", msg.Type)
		}
		var data UpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("Failed to decode update payload: %v", err)
		}
		if data.Data == nil || data.Data.ID != entity.ID || data.Data.Content != "hello" {
			t.Errorf("Unexpected update payload: %+v", data.Data)
		}
	}
}

func TestRelayAnnounceUpdateAnonymousEntry(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(store)
	go hub.Run()
	defer hub.Stop()

	relay := NewRelay(hub, hub.views)
	entity := &models.Clipboard{ID: primitive.NewObjectID(), Content: "x"}

	viewer := NewClient(hub, nil, "")
	hub.register <- viewer
	hub.inbound <- inboundEvent(t, viewer, MessageTypeJoinClipboard, ClipboardRoomData{ClipboardID: entity.ID.Hex()})
	recvViewers(t, viewer)

	// No owner means no dashboard broadcast, but the room still hears it
	relay.AnnounceUpdate(entity)

	msg := recvMessage(t, viewer)
	if msg.Type != MessageTypeClipboardUpdate {
		t.Errorf("Expected clipboard:update, got %s", msg.Type)
	}
}

func TestRelayAnnounceDelete(t *testing.T) {
	store := newFakeStore()
	hub := newTestHub(store)
	go hub.Run()
	defer hub.Stop()

	relay := NewRelay(hub, hub.views)
	id := newClipboardID()

	viewer := NewClient(hub, nil, "")
	hub.register <- viewer
	hub.inbound <- inboundEvent(t, viewer, MessageTypeJoinClipboard, ClipboardRoomData{ClipboardID: id})
	recvViewers(t, viewer)

	if hub.views.LastKnown(id) == nil {
		t.Fatal("Expected cached view count after join")
	}

	relay.AnnounceDelete(id, "")

	msg := recvMessage(t, viewer)
	if msg.Type != MessageTypeClipboardDeleted {
		t.Fatalf("Expected clipboard:deleted, got %s", msg.Type)
	}
	var data DeletedData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to decode deleted payload: %v", err)
	}
	if data.ClipboardID != id {
		t.Errorf("Expected clipboard id %s, got %s", id, data.ClipboardID)
	}

	// The deletion drops the cached view count
	if hub.views.LastKnown(id) != nil {
		t.Error("Expected cached view count forgotten after delete")
	}

	// Watchers stay in the room; later traffic still reaches them
	if count, _ := store.FetchVisitCount(context.Background(), id); count != 1 {
		t.Errorf("Expected persisted count untouched, got %d", count)
	}
	if !hub.registry.IsMember(id, viewer.id) {
		t.Error("Delete must not evict watchers from the room")
	}
}
