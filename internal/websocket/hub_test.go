package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"clipboard-service/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errTest = errors.New("store unavailable")

func newTestHub(store ClipboardStore) *Hub {
	return NewHub(NewViewCounter(store), nil, nil)
}

func startHub(t *testing.T, store ClipboardStore) *Hub {
	t.Helper()
	hub := newTestHub(store)
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

// connect registers a client with no network transport. Messages queued for
// it pile up in its send buffer where tests can read them.
func connect(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	client := NewClient(hub, nil, userID)
	select {
	case hub.register <- client:
	case <-time.After(time.Second):
		t.Fatal("Timed out registering client")
	}
	return client
}

func sendEvent(t *testing.T, hub *Hub, ev *clientEvent) {
	t.Helper()
	select {
	case hub.inbound <- ev:
	case <-time.After(time.Second):
		t.Fatal("Timed out sending event")
	}
}

func inboundEvent(t *testing.T, c *Client, msgType MessageType, payload any) *clientEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	return &clientEvent{client: c, message: &Message{Type: msgType, Data: data}}
}

func joinClipboard(t *testing.T, hub *Hub, c *Client, id string) {
	t.Helper()
	sendEvent(t, hub, inboundEvent(t, c, MessageTypeJoinClipboard, ClipboardRoomData{ClipboardID: id}))
}

func leaveClipboard(t *testing.T, hub *Hub, c *Client, id string) {
	t.Helper()
	sendEvent(t, hub, inboundEvent(t, c, MessageTypeLeaveClipboard, ClipboardRoomData{ClipboardID: id}))
}

func recvMessage(t *testing.T, c *Client) *Message {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("Send channel closed while waiting for message")
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to decode queued message: %v", err)
		}
		return &msg
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for message")
	}
	return nil
}

func recvViewers(t *testing.T, c *Client) ViewersData {
	t.Helper()
	msg := recvMessage(t, c)
	if msg.Type != MessageTypeClipboardViewers {
		t.Fatalf("Expected clipboard:viewers, got %s", msg.Type)
	}
	var data ViewersData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to decode viewers payload: %v", err)
	}
	return data
}

func expectNoMessageWithin(t *testing.T, c *Client, d time.Duration) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("Expected no message, got %s", data)
	case <-time.After(d):
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHubJoinClipboardAnnouncesViewers(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	a := connect(t, hub, "")
	joinClipboard(t, hub, a, id)

	got := recvViewers(t, a)
	if got.ClipboardID != id {
		t.Errorf("Expected clipboard %s, got %s", id, got.ClipboardID)
	}
	if got.Active != 1 {
		t.Errorf("Expected 1 active viewer, got %d", got.Active)
	}
	if got.TotalViews == nil || *got.TotalViews != 1 {
		t.Errorf("Expected totalViews 1, got %v", got.TotalViews)
	}

	// Second viewer: everyone in the room sees the new counts
	b := connect(t, hub, "")
	joinClipboard(t, hub, b, id)

	for _, c := range []*Client{a, b} {
		got := recvViewers(t, c)
		if got.Active != 2 {
			t.Errorf("Expected 2 active viewers, got %d", got.Active)
		}
		if got.TotalViews == nil || *got.TotalViews != 2 {
			t.Errorf("Expected totalViews 2, got %v", got.TotalViews)
		}
	}
}

func TestHubDuplicateJoinIsNoop(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	a := connect(t, hub, "")
	joinClipboard(t, hub, a, id)
	recvViewers(t, a)

	// Re-joining the same room must not bump the counter or re-announce
	joinClipboard(t, hub, a, id)
	expectNoMessageWithin(t, a, 150*time.Millisecond)
	if got, _ := store.FetchVisitCount(hub.ctx, id); got != 1 {
		t.Errorf("Expected visit count 1, got %d", got)
	}
}

func TestHubJoinMalformedIDIgnored(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)

	a := connect(t, hub, "")
	sendEvent(t, hub, inboundEvent(t, a, MessageTypeJoinClipboard, ClipboardRoomData{ClipboardID: "not-an-id"}))

	expectNoMessageWithin(t, a, 150*time.Millisecond)
	if got := hub.registry.ClipboardTopicOf(a.id); got != "" {
		t.Errorf("Malformed join should not create membership, got %q", got)
	}
}

func TestHubLeaveClipboardAnnouncesWithoutIncrement(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	a := connect(t, hub, "")
	b := connect(t, hub, "")
	joinClipboard(t, hub, a, id)
	recvViewers(t, a)
	joinClipboard(t, hub, b, id)
	recvViewers(t, a)
	recvViewers(t, b)

	leaveClipboard(t, hub, a, id)

	// The remaining viewer sees the drop; the leaver is already out of the room
	got := recvViewers(t, b)
	if got.Active != 1 {
		t.Errorf("Expected 1 active viewer after leave, got %d", got.Active)
	}
	if got.TotalViews == nil || *got.TotalViews != 2 {
		t.Errorf("Leave must not increment visits, got %v", got.TotalViews)
	}
	expectNoMessageWithin(t, a, 150*time.Millisecond)

	// Leaving a room the client is not in announces nothing
	leaveClipboard(t, hub, a, id)
	expectNoMessageWithin(t, b, 150*time.Millisecond)
}

func TestHubJoinSwitchesClipboardRoom(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	clip1 := newClipboardID()
	clip2 := newClipboardID()

	a := connect(t, hub, "")
	b := connect(t, hub, "")
	joinClipboard(t, hub, a, clip1)
	recvViewers(t, a)
	joinClipboard(t, hub, b, clip1)
	recvViewers(t, a)
	recvViewers(t, b)

	// Joining a second room implicitly leaves the first
	joinClipboard(t, hub, a, clip2)

	left := recvViewers(t, b)
	if left.ClipboardID != clip1 || left.Active != 1 {
		t.Errorf("Expected clip1 down to 1 viewer, got %+v", left)
	}
	if left.TotalViews == nil || *left.TotalViews != 2 {
		t.Errorf("Implicit leave should reuse last-known count, got %v", left.TotalViews)
	}

	joined := recvViewers(t, a)
	if joined.ClipboardID != clip2 || joined.Active != 1 {
		t.Errorf("Expected clip2 with 1 viewer, got %+v", joined)
	}
	if got := hub.registry.ClipboardTopicOf(a.id); got != clip2 {
		t.Errorf("Expected clipboard topic %s, got %s", clip2, got)
	}
}

func TestHubUserRooms(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)

	a := connect(t, hub, "u1")
	sendEvent(t, hub, inboundEvent(t, a, MessageTypeJoinUser, UserRoomData{UserID: "u1"}))
	waitFor(t, func() bool { return hub.registry.IsMember(UserTopic("u1"), a.id) },
		"Expected membership in user room")

	// User rooms carry no viewer-count traffic
	expectNoMessageWithin(t, a, 100*time.Millisecond)

	// A user room does not displace a clipboard room
	id := newClipboardID()
	joinClipboard(t, hub, a, id)
	recvViewers(t, a)
	if !hub.registry.IsMember(UserTopic("u1"), a.id) {
		t.Error("Clipboard join must not evict the user room")
	}

	sendEvent(t, hub, inboundEvent(t, a, MessageTypeLeaveUser, UserRoomData{UserID: "u1"}))
	waitFor(t, func() bool { return !hub.registry.IsMember(UserTopic("u1"), a.id) },
		"Expected user room membership gone")
}

func TestHubUserRoomRequiresMatchingIdentity(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	anon := connect(t, hub, "")
	other := connect(t, hub, "u2")

	sendEvent(t, hub, inboundEvent(t, anon, MessageTypeJoinUser, UserRoomData{UserID: "u1"}))
	sendEvent(t, hub, inboundEvent(t, other, MessageTypeJoinUser, UserRoomData{UserID: "u1"}))

	// A later join's announce proves the earlier events were processed
	joinClipboard(t, hub, anon, id)
	recvViewers(t, anon)

	if hub.registry.IsMember(UserTopic("u1"), anon.id) {
		t.Error("Anonymous connection must not enter a dashboard room")
	}
	if hub.registry.IsMember(UserTopic("u1"), other.id) {
		t.Error("Connection must not enter another user's dashboard room")
	}
}

func TestHubDisconnectAnnouncesNullTotal(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	a := connect(t, hub, "u1")
	b := connect(t, hub, "")
	sendEvent(t, hub, inboundEvent(t, a, MessageTypeJoinUser, UserRoomData{UserID: "u1"}))
	joinClipboard(t, hub, a, id)
	recvViewers(t, a)
	joinClipboard(t, hub, b, id)
	recvViewers(t, a)
	recvViewers(t, b)

	hub.unregister <- a

	// Disconnects never read persistence, so totalViews is null
	got := recvViewers(t, b)
	if got.Active != 1 {
		t.Errorf("Expected 1 active viewer after disconnect, got %d", got.Active)
	}
	if got.TotalViews != nil {
		t.Errorf("Expected null totalViews on disconnect, got %d", *got.TotalViews)
	}

	// User-room cleanup happens silently
	if hub.registry.IsMember(UserTopic("u1"), a.id) {
		t.Error("Expected user room membership gone after disconnect")
	}

	// A duplicate disconnect is a no-op
	hub.unregister <- a
	expectNoMessageWithin(t, b, 150*time.Millisecond)
}

func TestHubJoinSurvivesStoreFailure(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	store.incErr = errTest
	a := connect(t, hub, "")
	joinClipboard(t, hub, a, id)

	// The join succeeds and announces with a degraded count
	got := recvViewers(t, a)
	if got.Active != 1 {
		t.Errorf("Expected 1 active viewer, got %d", got.Active)
	}
	if got.TotalViews != nil {
		t.Errorf("Expected null totalViews when the counter never resolved, got %d", *got.TotalViews)
	}
	if !hub.registry.IsMember(id, a.id) {
		t.Error("Storage failure must not block the join")
	}
}

func TestHubBroadcastsStayOrdered(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	a := connect(t, hub, "")
	joinClipboard(t, hub, a, id)
	recvViewers(t, a)

	oid, _ := primitive.ObjectIDFromHex(id)
	for i := 1; i <= 3; i++ {
		msg, err := NewUpdateMessage(&models.Clipboard{ID: oid, Content: fmt.Sprintf("rev-%d", i)})
		if err != nil {
			t.Fatalf("NewUpdateMessage failed: %v", err)
		}
		hub.Broadcast(id, msg)
	}

	for i := 1; i <= 3; i++ {
		msg := recvMessage(t, a)
		var data UpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("Failed to decode update payload: %v", err)
		}
		if want := fmt.Sprintf("rev-%d", i); data.Data.Content != want {
			t.Fatalf("Broadcasts reordered: expected %s, got %s", want, data.Data.Content)
		}
	}
}

func TestHubJoinAnnounceDoesNotOvertakeBroadcast(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	a := connect(t, hub, "")
	joinClipboard(t, hub, a, id)
	recvViewers(t, a)

	// Park the second join's visit increment, then broadcast while it waits
	gate := make(chan struct{})
	store.setGate(gate)
	b := connect(t, hub, "")
	joinClipboard(t, hub, b, id)
	waitFor(t, func() bool { return hub.registry.IsMember(id, b.id) },
		"Expected join applied before the counter resolved")

	deleted, err := NewDeletedMessage(id)
	if err != nil {
		t.Fatalf("NewDeletedMessage failed: %v", err)
	}
	hub.Broadcast(id, deleted)

	// The earlier-issued broadcast must land first, even though the join's
	// announce is still pending
	first := recvMessage(t, a)
	if first.Type != MessageTypeClipboardDeleted {
		t.Fatalf("Expected clipboard:deleted before the viewers announce, got %s", first.Type)
	}

	close(gate)
	got := recvViewers(t, a)
	if got.Active != 2 {
		t.Errorf("Expected 2 active viewers, got %d", got.Active)
	}
	if got.TotalViews == nil || *got.TotalViews != 2 {
		t.Errorf("Expected totalViews 2, got %v", got.TotalViews)
	}
}

func TestHubAppliesEventsDuringVisitPersistence(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	clipX := newClipboardID()
	clipY := newClipboardID()

	c := connect(t, hub, "")
	joinClipboard(t, hub, c, clipY)
	recvViewers(t, c)

	// Park b's visit increment; the loop must keep serving other events
	gate := make(chan struct{})
	store.setGate(gate)
	b := connect(t, hub, "")
	joinClipboard(t, hub, b, clipX)
	waitFor(t, func() bool { return hub.registry.IsMember(clipX, b.id) },
		"Expected join applied before the counter resolved")

	hub.unregister <- c
	waitFor(t, func() bool { return hub.registry.MemberCount(clipY) == 0 },
		"Disconnect must take effect while another join awaits persistence")

	close(gate)
	got := recvViewers(t, b)
	if got.ClipboardID != clipX || got.Active != 1 {
		t.Errorf("Unexpected announce after release: %+v", got)
	}
}

func TestHubRunContainsHandlerPanic(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	a := connect(t, hub, "")
	b := connect(t, hub, "")

	// First join panics inside the store; the hub must survive it
	store.panicOn = id
	joinClipboard(t, hub, a, id)
	expectNoMessageWithin(t, a, 150*time.Millisecond)

	joinClipboard(t, hub, b, id)
	got := recvViewers(t, b)
	if got.Active != 2 {
		t.Errorf("Expected both viewers counted after recovery, got %d", got.Active)
	}
	if got.TotalViews == nil || *got.TotalViews != 1 {
		t.Errorf("Expected totalViews 1 after one successful increment, got %v", got.TotalViews)
	}
}

func TestHubBroadcast(t *testing.T) {
	store := newFakeStore()
	hub := startHub(t, store)
	id := newClipboardID()

	a := connect(t, hub, "")
	joinClipboard(t, hub, a, id)
	recvViewers(t, a)

	msg, err := NewDeletedMessage(id)
	if err != nil {
		t.Fatalf("NewDeletedMessage failed: %v", err)
	}
	hub.Broadcast(id, msg)

	got := recvMessage(t, a)
	if got.Type != MessageTypeClipboardDeleted {
		t.Errorf("Expected clipboard:deleted, got %s", got.Type)
	}
}
