package dto

import (
	"encoding/json"
	"time"

	"github.com/ordelia/chat-api/internal/models"
	"github.com/ordelia/chat-api/internal/moderation"
)

// Websocket event names exchanged with clients.
const (
	EventJoinRoom   = "join_room"
	EventLeaveRoom  = "leave_room"
	EventSendMsg    = "send_message"
	EventMarkRead   = "mark_as_read"
	EventTypingOn   = "typing_start"
	EventTypingOff  = "typing_stop"
	EventRoomJoined = "room_joined"
	EventRoomLeft   = "room_left"
	EventMsgRecv    = "message_received"
	EventMsgAck     = "message_sent_ack"
	EventMsgError   = "message_error"
	EventBlocked    = "contact_blocked"
	EventOnline     = "user_online"
	EventOffline    = "user_offline"
	EventTyping     = "user_typing"
	EventTypingStop = "user_stopped_typing"
	EventError      = "error"
)

// Stable machine-readable codes carried by message_error events.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeForbidden   = "PERMISSION_ERROR"
	CodeRateLimited = "RATE_LIMIT_ERROR"
	CodePersistence = "PERSISTENCE_ERROR"
)

// ClientEvent is the envelope clients send over the websocket.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServerEvent is the envelope the server writes to clients.
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// RoomRef is the payload for join/leave/mark-read/typing client events.
type RoomRef struct {
	RoomID uint `json:"roomId" validate:"required"`
}

// ChatSendRequest is the payload of a send_message event. TempID is the
// client's optimistic-UI correlation id and is echoed on ack and error.
type ChatSendRequest struct {
	RoomID  uint   `json:"roomId" validate:"required"`
	Content string `json:"content" validate:"required,max=2000"`
	TempID  string `json:"tempId" validate:"omitempty,max=64"`
}

// ChatMessageResponse is the serialized representation of a chat message.
type ChatMessageResponse struct {
	ID                uint          `json:"id"`
	ChatRoomID        uint          `json:"chatRoomId"`
	SenderID          uint          `json:"senderId"`
	Content           string        `json:"content"`
	HasBlockedContent bool          `json:"hasBlockedContent"`
	IsRead            bool          `json:"isRead"`
	Sender            MessageSender `json:"sender"`
	CreatedAt         time.Time     `json:"createdAt"`
}

// MessageSender is the denormalized sender snapshot on a message.
type MessageSender struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// MessageReceived is the payload of a message_received fan-out event.
type MessageReceived struct {
	Message ChatMessageResponse `json:"message"`
}

// MessageAck is the payload of a message_sent_ack event, sender only.
type MessageAck struct {
	TempID  string              `json:"tempId,omitempty"`
	Message ChatMessageResponse `json:"message"`
}

// MessageError reports a failed send back to the originating client.
type MessageError struct {
	TempID  string `json:"tempId,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ContactBlocked is the sender-only disclosure emitted when redaction occurred.
type ContactBlocked struct {
	MessageID       uint                   `json:"messageId"`
	OriginalContent string                 `json:"originalContent"`
	FilteredContent string                 `json:"filteredContent"`
	Violations      []moderation.Violation `json:"violations"`
	Message         string                 `json:"message"`
}

// ErrorMessage is the payload of the generic error event.
type ErrorMessage struct {
	Message string `json:"message"`
}

// PresenceEvent is the payload of user_online/user_offline and typing events.
type PresenceEvent struct {
	RoomID uint   `json:"roomId"`
	UserID uint   `json:"userId"`
	Role   string `json:"role"`
}

// RoomJoined confirms a successful room join to the acting connection.
type RoomJoined struct {
	RoomID uint             `json:"roomId"`
	Room   ChatRoomResponse `json:"room"`
}

// ChatRoomResponse is the serialized representation of a chat room.
type ChatRoomResponse struct {
	ID            uint                 `json:"id"`
	OrderItemID   uint                 `json:"orderItemId"`
	CustomerID    uint                 `json:"customerId"`
	VendorID      uint                 `json:"vendorId"`
	IsActive      bool                 `json:"isActive"`
	CreatedAt     time.Time            `json:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt"`
	LatestMessage *ChatMessageResponse `json:"latestMessage,omitempty"`
}

// RoomProvisionRequest is the payload the order system posts when an order
// reaches payment confirmation. One room is provisioned per line item.
type RoomProvisionRequest struct {
	OrderID uint                `json:"orderId" validate:"required"`
	Status  string              `json:"status" validate:"required"`
	Items   []RoomProvisionItem `json:"items" validate:"required,min=1,dive"`
}

// RoomProvisionItem identifies one order line item and its two parties.
type RoomProvisionItem struct {
	OrderItemID       uint `json:"orderItemId" validate:"required"`
	CustomerProfileID uint `json:"customerProfileId" validate:"required"`
	VendorProfileID   uint `json:"vendorProfileId" validate:"required"`
}

// ChatHistoryQuery represents query filters for retrieving room history.
type ChatHistoryQuery struct {
	RoomID uint       `query:"room_id" validate:"required"`
	Before *time.Time `query:"before"`
	Limit  int        `query:"limit" validate:"omitempty,min=1,max=100"`
}

// NewChatMessageResponse converts a model into a DTO.
func NewChatMessageResponse(message models.ChatMessage) ChatMessageResponse {
	return ChatMessageResponse{
		ID:                message.ID,
		ChatRoomID:        message.ChatRoomID,
		SenderID:          message.SenderID,
		Content:           message.Content,
		HasBlockedContent: message.HasBlockedContent,
		IsRead:            message.IsRead,
		Sender: MessageSender{
			FirstName: message.SenderFirstName,
			LastName:  message.SenderLastName,
			Role:      message.SenderRole,
		},
		CreatedAt: message.CreatedAt,
	}
}

// NewChatMessageResponseSlice converts a slice of models into DTOs.
func NewChatMessageResponseSlice(messages []models.ChatMessage) []ChatMessageResponse {
	out := make([]ChatMessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewChatMessageResponse(message))
	}
	return out
}

// NewChatRoomResponse converts a room model into a DTO.
func NewChatRoomResponse(room models.ChatRoom) ChatRoomResponse {
	return ChatRoomResponse{
		ID:          room.ID,
		OrderItemID: room.OrderItemID,
		CustomerID:  room.CustomerID,
		VendorID:    room.VendorID,
		IsActive:    room.IsActive,
		CreatedAt:   room.CreatedAt,
		UpdatedAt:   room.UpdatedAt,
	}
}
