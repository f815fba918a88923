package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"clipboard-service/internal/models"
	"clipboard-service/internal/services"

	"github.com/google/uuid"
)

var ErrClientDisconnected = fmt.Errorf("client disconnected")

const (
	// Bound on the visit-counter store call behind a join or leave; the
	// announce degrades to a stale totalViews instead of waiting longer.
	persistenceTimeout = 2 * time.Second

	// Bound on best-effort Redis presence-mirror operations.
	redisOpTimeout = 500 * time.Millisecond
)

// clientEvent is one decoded inbound frame awaiting dispatch.
type clientEvent struct {
	client  *Client
	message *Message
}

// topicMessage is a broadcast request. remote marks messages that arrived
// through Redis pub/sub and must not be republished. A viewersAnnounce entry
// carries no prebuilt message: it is rendered at delivery time so active
// reflects the registry at the moment the announce goes out.
type topicMessage struct {
	topicID string
	message *Message
	remote  bool

	viewersAnnounce bool
	totalViews      *int64
}

func viewersAnnounce(topicID string, totalViews *int64) *topicMessage {
	return &topicMessage{topicID: topicID, viewersAnnounce: true, totalViews: totalViews}
}

// relayEnvelope is the cross-instance wire format. Origin lets the
// publishing instance drop its own messages when they come back around.
type relayEnvelope struct {
	Origin  string   `json:"origin"`
	Topic   string   `json:"topic"`
	Message *Message `json:"message"`
}

// Hub owns the presence registry and serializes every mutation and broadcast
// through its Run loop, which guarantees per-topic FIFO delivery. Network
// reads happen on per-client goroutines; they funnel decoded events here.
type Hub struct {
	instanceID string

	// Registered clients by connection id
	clients map[string]*Client

	registry *Registry
	views    *ViewCounter

	register   chan *Client
	unregister chan *Client
	inbound    chan *clientEvent
	broadcast  chan *topicMessage

	// Optional shared presence + cross-instance fan-out. A nil service
	// degrades to single-instance, in-memory operation.
	redisService *services.RedisService

	// Optional activity stream; nil-safe.
	audit *services.AuditService

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(views *ViewCounter, redisService *services.RedisService, audit *services.AuditService) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		instanceID:   uuid.New().String(),
		clients:      make(map[string]*Client),
		registry:     NewRegistry(),
		views:        views,
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		inbound:      make(chan *clientEvent),
		broadcast:    make(chan *topicMessage, 64),
		redisService: redisService,
		audit:        audit,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Registry exposes the presence index for read-side consumers (REST stats,
// tests). All mutation goes through the hub.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Run() {
	if h.redisService != nil {
		go h.redisListener()
	}

	for {
		select {
		case client := <-h.register:
			h.safely("register", func() { h.registerClient(client) })

		case client := <-h.unregister:
			h.safely("disconnect", func() { h.disconnectClient(client) })

		case event := <-h.inbound:
			h.safely(event.message.Type.String(), func() { h.dispatch(event) })

		case tm := <-h.broadcast:
			h.safely("broadcast", func() { h.deliver(tm) })

		case <-h.ctx.Done():
			slog.Info("WebSocket hub shutting down")
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

// safely is the outermost per-event boundary: a panic in one handler is
// logged and must not take down the loop or other connections.
func (h *Hub) safely(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Recovered from handler panic", "event", event, "panic", r)
		}
	}()
	fn()
}

// Broadcast queues a message for every connection in the topic, here and on
// peer instances. Safe to call from any goroutine.
func (h *Hub) Broadcast(topicID string, message *Message) {
	h.queue(&topicMessage{topicID: topicID, message: message})
}

// queue appends to the broadcast channel, the single ordered delivery path:
// everything bound for a topic goes through it, so two messages queued for
// the same topic always arrive in queue order. Not for use from the Run loop.
func (h *Hub) queue(tm *topicMessage) {
	select {
	case h.broadcast <- tm:
	case <-h.ctx.Done():
	}
}

// queueFromLoop is the Run-loop variant of queue. The loop is the channel's
// only drainer, so a blocking send from inside it could deadlock on a full
// buffer; instead the oldest pending entry is delivered to make room, which
// keeps queue order intact.
func (h *Hub) queueFromLoop(tm *topicMessage) {
	for {
		select {
		case h.broadcast <- tm:
			return
		default:
			h.deliver(<-h.broadcast)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clients[client.id] = client
	slog.Info("Client registered", "clientID", client.id, "userID", client.userID)
}

// disconnectClient removes the connection from every topic it belonged to and
// announces updated viewer counts. No persisted-count read happens here: a
// disconnect may fan out to many topics at once and must stay cheap, so
// totalViews is null on this path. Duplicate disconnects are no-ops.
func (h *Hub) disconnectClient(client *Client) {
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)
	client.closeSendChannel()

	affected := h.registry.LeaveAll(client.id)
	for _, topicID := range affected {
		h.safely("disconnect:"+topicID, func() {
			h.mirrorLeave(topicID, client.id)
			if IsUserTopic(topicID) {
				return
			}
			h.queueFromLoop(viewersAnnounce(topicID, nil))
		})
	}

	slog.Info("Client disconnected", "clientID", client.id, "userID", client.userID, "topics", len(affected))
}

func (h *Hub) dispatch(event *clientEvent) {
	client, msg := event.client, event.message

	switch msg.Type {
	case MessageTypeJoinUser:
		var data UserRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			slog.Debug("Malformed joinUser payload", "clientID", client.id, "error", err)
			return
		}
		h.handleJoinUser(client, data.UserID)

	case MessageTypeLeaveUser:
		var data UserRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			slog.Debug("Malformed leaveUser payload", "clientID", client.id, "error", err)
			return
		}
		h.handleLeaveUser(client, data.UserID)

	case MessageTypeJoinClipboard:
		var data ClipboardRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			slog.Debug("Malformed joinClipboard payload", "clientID", client.id, "error", err)
			return
		}
		h.handleJoinClipboard(client, data.ClipboardID)

	case MessageTypeLeaveClipboard:
		var data ClipboardRoomData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			slog.Debug("Malformed leaveClipboard payload", "clientID", client.id, "error", err)
			return
		}
		h.handleLeaveClipboard(client, data.ClipboardID)

	default:
		slog.Debug("Ignoring message type", "clientID", client.id, "type", msg.Type)
	}
}

// handleJoinUser admits a connection to a dashboard room. Only the
// authenticated owner of the id may join: user rooms carry the owner's
// clipboard:update fan-out, which must not be open to arbitrary sockets.
func (h *Hub) handleJoinUser(client *Client, userID string) {
	if userID == "" || client.userID != userID {
		slog.Debug("Ignoring user room join for mismatched identity", "clientID", client.id, "userID", userID)
		return
	}

	topicID := UserTopic(userID)
	if h.registry.Join(topicID, client.id) == Joined {
		h.mirrorJoin(topicID, client.id)
		slog.Info("Client joined user room", "clientID", client.id, "userID", userID)
	}
}

func (h *Hub) handleLeaveUser(client *Client, userID string) {
	if userID == "" {
		return
	}

	topicID := UserTopic(userID)
	if h.registry.Leave(topicID, client.id) {
		h.mirrorLeave(topicID, client.id)
		slog.Info("Client left user room", "clientID", client.id, "userID", userID)
	}
}

// handleJoinClipboard joins the clipboard room, bumps the persisted visit
// counter and announces {active, totalViews} to the room. A connection holds
// at most one clipboard room: joining a new one implicitly leaves the old.
// A failed counter increment degrades totalViews; it never blocks the join.
func (h *Hub) handleJoinClipboard(client *Client, clipboardID string) {
	if !models.IsValidClipboardID(clipboardID) {
		slog.Debug("Ignoring join for malformed clipboard id", "clientID", client.id, "clipboardID", clipboardID)
		return
	}

	// One clipboard room per connection: switching rooms implicitly leaves
	// the old one. The old room's announce reuses the last-known view count
	// rather than spending a persisted read on the join hot path.
	if current := h.registry.ClipboardTopicOf(client.id); current != "" && current != clipboardID {
		if h.registry.Leave(current, client.id) {
			h.mirrorLeave(current, client.id)
			h.queueFromLoop(viewersAnnounce(current, h.views.LastKnown(current)))
		}
	}

	if h.registry.Join(clipboardID, client.id) != Joined {
		return
	}
	h.mirrorJoin(clipboardID, client.id)
	slog.Info("Client joined clipboard room", "clientID", client.id, "clipboardID", clipboardID)

	// The increment and audit publish wait on external systems; they must not
	// stall the loop, so they run aside and the announce rejoins the ordered
	// broadcast queue once the count resolves.
	userID := client.userID
	go h.safely("joinClipboard:visit", func() {
		ctx, cancel := context.WithTimeout(h.ctx, persistenceTimeout)
		defer cancel()
		_, totalViews := h.views.OnJoin(ctx, clipboardID)
		h.audit.Record("visit", clipboardID, userID)
		h.queue(viewersAnnounce(clipboardID, totalViews))
	})
}

func (h *Hub) handleLeaveClipboard(client *Client, clipboardID string) {
	if !models.IsValidClipboardID(clipboardID) {
		slog.Debug("Ignoring leave for malformed clipboard id", "clientID", client.id, "clipboardID", clipboardID)
		return
	}

	if !h.registry.Leave(clipboardID, client.id) {
		return
	}
	h.mirrorLeave(clipboardID, client.id)
	slog.Info("Client left clipboard room", "clientID", client.id, "clipboardID", clipboardID)

	go h.safely("leaveClipboard:views", func() {
		ctx, cancel := context.WithTimeout(h.ctx, persistenceTimeout)
		defer cancel()
		totalViews := h.views.OnLeave(ctx, clipboardID)
		h.queue(viewersAnnounce(clipboardID, totalViews))
	})
}

// activeCount prefers the shared Redis presence mirror so counts hold across
// horizontally scaled instances, falling back to the local registry when the
// mirror is unavailable or behind.
func (h *Hub) activeCount(topicID string) int {
	local := h.registry.MemberCount(topicID)
	if h.redisService == nil {
		return local
	}

	ctx, cancel := context.WithTimeout(h.ctx, redisOpTimeout)
	defer cancel()

	count, err := h.redisService.TopicViewerCount(ctx, topicID)
	if err != nil {
		slog.Warn("Presence mirror read failed", "topicID", topicID, "error", err)
		return local
	}
	if int(count) < local {
		return local
	}
	return int(count)
}

func (h *Hub) mirrorJoin(topicID, connID string) {
	if h.redisService == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, redisOpTimeout)
	defer cancel()
	if err := h.redisService.AddTopicViewer(ctx, topicID, connID); err != nil {
		slog.Warn("Presence mirror add failed", "topicID", topicID, "connID", connID, "error", err)
	}
}

func (h *Hub) mirrorLeave(topicID, connID string) {
	if h.redisService == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, redisOpTimeout)
	defer cancel()
	if err := h.redisService.RemoveTopicViewer(ctx, topicID, connID); err != nil {
		slog.Warn("Presence mirror remove failed", "topicID", topicID, "connID", connID, "error", err)
	}
}

// deliver fans a message out to the topic's local members and, for locally
// originated messages, republishes it for peer instances. Broadcasting to an
// empty topic is a no-op.
func (h *Hub) deliver(tm *topicMessage) {
	if tm.viewersAnnounce {
		msg, err := NewViewersMessage(tm.topicID, h.activeCount(tm.topicID), tm.totalViews)
		if err != nil {
			slog.Error("Failed to build viewers message", "clipboardID", tm.topicID, "error", err)
			return
		}
		tm.message = msg
	}

	if !tm.remote && h.redisService != nil {
		envelope := relayEnvelope{Origin: h.instanceID, Topic: tm.topicID, Message: tm.message}
		ctx, cancel := context.WithTimeout(h.ctx, redisOpTimeout)
		if err := h.redisService.PublishTopicMessage(ctx, tm.topicID, envelope); err != nil {
			slog.Warn("Cross-instance publish failed", "topicID", tm.topicID, "error", err)
		}
		cancel()
	}

	delivered := 0
	for _, connID := range h.registry.Members(tm.topicID) {
		client, ok := h.clients[connID]
		if !ok {
			continue
		}
		if err := client.SendMessage(tm.message); err != nil {
			slog.Debug("Failed to deliver message", "clientID", connID, "topicID", tm.topicID, "error", err)
			continue
		}
		delivered++
	}

	slog.Debug("Message delivered", "topicID", tm.topicID, "type", tm.message.Type, "clients", delivered)
}

// redisListener receives envelopes published by peer instances and replays
// them to local topic members. Envelopes this instance published are dropped.
func (h *Hub) redisListener() {
	pubsub := h.redisService.SubscribeTopicMessages(h.ctx)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var envelope relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				slog.Warn("Malformed relay envelope", "channel", msg.Channel, "error", err)
				continue
			}
			if envelope.Origin == h.instanceID || envelope.Message == nil {
				continue
			}

			select {
			case h.broadcast <- &topicMessage{topicID: envelope.Topic, message: envelope.Message, remote: true}:
			case <-h.ctx.Done():
				return
			}

		case <-h.ctx.Done():
			return
		}
	}
}
