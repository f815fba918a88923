package websocket

import (
	"encoding/json"
	"fmt"

	"clipboard-service/internal/models"
)

// MessageType identifies a WebSocket event. The set is closed: anything a
// client sends outside the inbound types is dropped at the decode boundary.
type MessageType string

const (
	// Client -> server requests
	MessageTypeJoinUser       MessageType = "joinUser"
	MessageTypeLeaveUser      MessageType = "leaveUser"
	MessageTypeJoinClipboard  MessageType = "joinClipboard"
	MessageTypeLeaveClipboard MessageType = "leaveClipboard"

	// Server -> client notices
	MessageTypeClipboardUpdate  MessageType = "clipboard:update"
	MessageTypeClipboardDeleted MessageType = "clipboard:deleted"
	MessageTypeClipboardViewers MessageType = "clipboard:viewers"
)

func (mt MessageType) String() string {
	return string(mt)
}

// IsInbound reports whether the type is a valid client request.
func (mt MessageType) IsInbound() bool {
	switch mt {
	case MessageTypeJoinUser, MessageTypeLeaveUser,
		MessageTypeJoinClipboard, MessageTypeLeaveClipboard:
		return true
	default:
		return false
	}
}

// Message is the wire envelope for both directions.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound payloads

type UserRoomData struct {
	UserID string `json:"userId"`
}

type ClipboardRoomData struct {
	ClipboardID string `json:"clipboardId"`
}

// Outbound payloads

type ViewersData struct {
	ClipboardID string `json:"clipboardId"`
	Active      int    `json:"active"`
	// TotalViews is null on the disconnect path, where no persisted read
	// happens.
	TotalViews *int64 `json:"totalViews"`
}

type UpdateData struct {
	Data *models.Clipboard `json:"data"`
}

type DeletedData struct {
	ClipboardID string `json:"clipboardId"`
}

func newMessage(msgType MessageType, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return &Message{Type: msgType, Data: data}, nil
}

// NewViewersMessage builds a clipboard:viewers notice. totalViews may be nil.
func NewViewersMessage(clipboardID string, active int, totalViews *int64) (*Message, error) {
	return newMessage(MessageTypeClipboardViewers, ViewersData{
		ClipboardID: clipboardID,
		Active:      active,
		TotalViews:  totalViews,
	})
}

// NewUpdateMessage builds a clipboard:update notice carrying the full entity.
func NewUpdateMessage(entity *models.Clipboard) (*Message, error) {
	return newMessage(MessageTypeClipboardUpdate, UpdateData{Data: entity})
}

// NewDeletedMessage builds a clipboard:deleted notice.
func NewDeletedMessage(clipboardID string) (*Message, error) {
	return newMessage(MessageTypeClipboardDeleted, DeletedData{ClipboardID: clipboardID})
}
