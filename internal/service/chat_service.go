package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ordelia/chat-api/internal/access"
	"github.com/ordelia/chat-api/internal/bus"
	"github.com/ordelia/chat-api/internal/dto"
	"github.com/ordelia/chat-api/internal/models"
	"github.com/ordelia/chat-api/internal/moderation"
	"github.com/ordelia/chat-api/internal/observability"
	"github.com/ordelia/chat-api/internal/ratelimit"
	"github.com/ordelia/chat-api/internal/repository"
)

const (
	persistenceTimeout         = 5 * time.Second
	defaultNotifyTimeout       = 3 * time.Second
	notificationPreviewRunes   = 50
	notificationTypeNewMessage = "chat_message"
)

// PresenceRegistry is the cluster-wide view of which users hold live
// connections in a room.
type PresenceRegistry interface {
	Join(ctx context.Context, roomID, userID uint) error
	Leave(ctx context.Context, roomID, userID uint) error
	IsUserInRoom(ctx context.Context, roomID, userID uint) (bool, error)
}

// Notifier delivers offline notifications. Failures must never surface to
// the message sender.
type Notifier interface {
	Notify(ctx context.Context, input NotificationInput) error
}

// NotificationInput is the payload handed to the Notifier.
type NotificationInput struct {
	UserID   uint
	Type     string
	Title    string
	Message  string
	Link     string
	Metadata map[string]interface{}
}

// ChatService manages websocket chat connections: membership, the message
// pipeline, typing relay and cross-instance fan-out.
type ChatService interface {
	ServeConnection(conn *websocket.Conn, identity access.Identity)
	History(ctx context.Context, identity access.Identity, query dto.ChatHistoryQuery) ([]dto.ChatMessageResponse, error)
	Start(ctx context.Context) error
}

// ChatServiceParams bundles the chat service dependencies.
type ChatServiceParams struct {
	Messages      repository.MessageRepository
	Profiles      repository.ProfileRepository
	Rooms         repository.RoomRepository
	Authorizer    access.Authorizer
	Limiter       *ratelimit.Limiter
	Filter        *moderation.Filter
	Presence      PresenceRegistry
	Bus           bus.Bus
	Notifier      Notifier
	Validator     *validator.Validate
	Logger        zerolog.Logger
	NotifyTimeout time.Duration
}

type chatService struct {
	messages      repository.MessageRepository
	profiles      repository.ProfileRepository
	rooms         repository.RoomRepository
	authorizer    access.Authorizer
	limiter       *ratelimit.Limiter
	filter        *moderation.Filter
	presence      PresenceRegistry
	bus           bus.Bus
	notifier      Notifier
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	sanitizer     *bluemonday.Policy
	hub           *chatHub
	nodeID        string
	notifyTimeout time.Duration
}

// sendError is a pipeline failure with its wire representation.
type sendError struct {
	code    string
	message string
}

func (e *sendError) Error() string { return e.message }

// NewChatService creates the websocket chat service.
func NewChatService(p ChatServiceParams) ChatService {
	sanitizer := bluemonday.StrictPolicy()

	notifyTimeout := p.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}

	logger := p.Logger.With().Str("component", "chat_service").Logger()

	return &chatService{
		messages:      p.Messages,
		profiles:      p.Profiles,
		rooms:         p.Rooms,
		authorizer:    p.Authorizer,
		limiter:       p.Limiter,
		filter:        p.Filter,
		presence:      p.Presence,
		bus:           p.Bus,
		notifier:      p.Notifier,
		validator:     p.Validator,
		logger:        logger,
		tracer:        otel.Tracer("github.com/ordelia/chat-api/internal/service/chat"),
		sanitizer:     sanitizer,
		hub:           newChatHub(p.Logger),
		nodeID:        uuid.NewString(),
		notifyTimeout: notifyTimeout,
	}
}

// Start subscribes the instance to the fan-out bus. Broadcasts originated by
// peers are replayed to locally connected sockets.
func (s *chatService) Start(ctx context.Context) error {
	return s.bus.Subscribe(ctx, s.handleBusEvent)
}

// ServeConnection runs the connection's pumps until the socket closes. The
// identity has already been verified by the gatekeeper middleware.
func (s *chatService) ServeConnection(conn *websocket.Conn, identity access.Identity) {
	client := &chatClient{
		conn:     conn,
		send:     make(chan dto.ServerEvent, clientSendBufferSize),
		identity: identity,
		sender:   s.senderSnapshot(context.Background(), identity),
		service:  s,
		baseCtx:  context.Background(),
		rooms:    make(map[uint]struct{}),
		closed:   make(chan struct{}),
	}

	observability.ChatConnectionsActive().Inc()
	s.autoJoin(client)

	go client.writer()
	client.reader()
}

// autoJoin subscribes the connection to every room its identity currently
// has access to. Admins browse rooms explicitly instead; joining the entire
// room table on connect would pin every conversation to one socket.
func (s *chatService) autoJoin(client *chatClient) {
	ctx, cancel := context.WithTimeout(client.baseCtx, persistenceTimeout)
	defer cancel()

	var (
		rooms []models.ChatRoom
		err   error
	)

	switch client.identity.Role {
	case models.RoleCustomer:
		profile, perr := s.profiles.CustomerByUserID(ctx, client.identity.UserID)
		if perr != nil {
			err = perr
			break
		}
		rooms, err = s.rooms.ListByCustomer(ctx, profile.ID)
	case models.RoleVendor:
		profile, perr := s.profiles.VendorByUserID(ctx, client.identity.UserID)
		if perr != nil {
			err = perr
			break
		}
		rooms, err = s.rooms.ListByVendor(ctx, profile.ID)
	default:
		return
	}

	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn().Err(err).Uint("user_id", client.identity.UserID).Msg("auto-join room lookup failed")
		}
		return
	}

	for _, room := range rooms {
		s.joinRoom(client, room, false)
	}
}

// handleJoin re-validates access before joining; clients may hold stale room
// lists.
func (s *chatService) handleJoin(client *chatClient, roomID uint) {
	ctx, cancel := context.WithTimeout(client.baseCtx, persistenceTimeout)
	defer cancel()

	room, err := s.authorizer.Authorize(ctx, roomID, client.identity)
	if err != nil {
		client.enqueue(dto.ServerEvent{Event: dto.EventError, Data: dto.ErrorMessage{Message: "access denied"}})
		return
	}

	s.joinRoom(client, room, true)
}

func (s *chatService) joinRoom(client *chatClient, room models.ChatRoom, confirm bool) {
	if !s.hub.join(room.ID, client) {
		return
	}

	ctx, cancel := context.WithTimeout(client.baseCtx, persistenceTimeout)
	defer cancel()

	if err := s.presence.Join(ctx, room.ID, client.identity.UserID); err != nil {
		s.logger.Warn().Err(err).Uint("room_id", room.ID).Msg("presence join failed")
	}

	if confirm {
		client.enqueue(dto.ServerEvent{Event: dto.EventRoomJoined, Data: dto.RoomJoined{
			RoomID: room.ID,
			Room:   dto.NewChatRoomResponse(room),
		}})
	}

	s.broadcastRoom(ctx, room.ID, dto.ServerEvent{Event: dto.EventOnline, Data: dto.PresenceEvent{
		RoomID: room.ID,
		UserID: client.identity.UserID,
		Role:   client.identity.Role,
	}}, client)
}

func (s *chatService) handleLeave(client *chatClient, roomID uint) {
	if !s.hub.leave(roomID, client) {
		return
	}

	ctx, cancel := context.WithTimeout(client.baseCtx, persistenceTimeout)
	defer cancel()

	if err := s.presence.Leave(ctx, roomID, client.identity.UserID); err != nil {
		s.logger.Warn().Err(err).Uint("room_id", roomID).Msg("presence leave failed")
	}

	client.enqueue(dto.ServerEvent{Event: dto.EventRoomLeft, Data: dto.RoomRef{RoomID: roomID}})

	s.broadcastRoom(ctx, roomID, dto.ServerEvent{Event: dto.EventOffline, Data: dto.PresenceEvent{
		RoomID: roomID,
		UserID: client.identity.UserID,
		Role:   client.identity.Role,
	}}, client)
}

// disconnect is invoked once per connection when the socket closes. Every
// room the connection was still joined to gets an offline broadcast.
func (s *chatService) disconnect(client *chatClient) {
	observability.ChatConnectionsActive().Dec()

	ctx, cancel := context.WithTimeout(context.Background(), persistenceTimeout)
	defer cancel()

	for _, roomID := range s.hub.drop(client) {
		if err := s.presence.Leave(ctx, roomID, client.identity.UserID); err != nil {
			s.logger.Warn().Err(err).Uint("room_id", roomID).Msg("presence leave failed")
		}
		s.broadcastRoom(ctx, roomID, dto.ServerEvent{Event: dto.EventOffline, Data: dto.PresenceEvent{
			RoomID: roomID,
			UserID: client.identity.UserID,
			Role:   client.identity.Role,
		}}, client)
	}
}

// handleSend runs the full message pipeline and reports the outcome to the
// sending connection.
func (s *chatService) handleSend(client *chatClient, payload dto.ChatSendRequest) {
	ctx, cancel := context.WithTimeout(client.baseCtx, persistenceTimeout)
	defer cancel()

	message, filterResult, original, err := s.processSend(ctx, client, payload)
	if err != nil {
		var sendErr *sendError
		if !errors.As(err, &sendErr) {
			sendErr = &sendError{code: dto.CodePersistence, message: "failed to send message, please try again"}
		}
		client.enqueue(dto.ServerEvent{Event: dto.EventMsgError, Data: dto.MessageError{
			TempID:  payload.TempID,
			Message: sendErr.message,
			Code:    sendErr.code,
		}})
		return
	}

	// Acknowledge to the sender first so optimistic UI state resolves before
	// any disclosure warning arrives.
	client.enqueue(dto.ServerEvent{Event: dto.EventMsgAck, Data: dto.MessageAck{
		TempID:  payload.TempID,
		Message: message,
	}})

	// Fan out to the other participants with the recipient view of the read
	// flag.
	broadcastCopy := message
	broadcastCopy.IsRead = false
	s.broadcastRoom(ctx, message.ChatRoomID, dto.ServerEvent{Event: dto.EventMsgRecv, Data: dto.MessageReceived{Message: broadcastCopy}}, client)

	go s.notifyOffline(message)

	if filterResult.HasBlockedContent {
		observability.ChatMessagesBlocked().Inc()
		client.enqueue(dto.ServerEvent{Event: dto.EventBlocked, Data: dto.ContactBlocked{
			MessageID:       message.ID,
			OriginalContent: original,
			FilteredContent: message.Content,
			Violations:      filterResult.Violations,
			Message:         "sharing contact details is not allowed; the message was delivered with them removed",
		}})
	}
}

// processSend is the gated pipeline: validation, write permission, rate
// limit, filtering, persistence. Each gate short-circuits with a typed
// failure; nothing is persisted unless every gate passes.
func (s *chatService) processSend(ctx context.Context, client *chatClient, payload dto.ChatSendRequest) (dto.ChatMessageResponse, moderation.Result, string, error) {
	var zero moderation.Result

	// Strip markup, then undo bluemonday's entity escaping so plain text
	// containing <, > or & is stored exactly as typed.
	content := strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(payload.Content)))
	payload.Content = content

	if err := s.validator.Struct(payload); err != nil || content == "" {
		return dto.ChatMessageResponse{}, zero, "", &sendError{
			code:    dto.CodeValidation,
			message: "content must be between 1 and 2000 characters and roomId is required",
		}
	}

	if !s.authorizer.CanWrite(client.identity.Role) {
		return dto.ChatMessageResponse{}, zero, "", &sendError{code: dto.CodeForbidden, message: "access denied"}
	}

	room, err := s.authorizer.Authorize(ctx, payload.RoomID, client.identity)
	if err != nil {
		if errors.Is(err, access.ErrRoomNotFound) || errors.Is(err, access.ErrAccessDenied) {
			return dto.ChatMessageResponse{}, zero, "", &sendError{code: dto.CodeForbidden, message: "access denied"}
		}
		return dto.ChatMessageResponse{}, zero, "", fmt.Errorf("authorize send: %w", err)
	}

	if !room.IsActive {
		return dto.ChatMessageResponse{}, zero, "", &sendError{code: dto.CodeForbidden, message: "this conversation has been closed"}
	}

	if !s.limiter.Allow(client.identity.UserID) {
		observability.ChatRateLimited().Inc()
		return dto.ChatMessageResponse{}, zero, "", &sendError{
			code:    dto.CodeRateLimited,
			message: "too many messages: " + ratelimit.PolicyText,
		}
	}

	filterResult := s.filter.Apply(content)

	attrs := []attribute.KeyValue{
		attribute.Int64("chat.room_id", int64(room.ID)),
		attribute.Int64("chat.sender_id", int64(client.identity.UserID)),
		attribute.Bool("chat.blocked_content", filterResult.HasBlockedContent),
	}
	spanCtx, span := s.tracer.Start(ctx, "chat.send", trace.WithAttributes(attrs...))
	defer span.End()

	model := models.ChatMessage{
		ChatRoomID:        room.ID,
		SenderID:          client.identity.UserID,
		Content:           filterResult.FilteredText,
		HasBlockedContent: filterResult.HasBlockedContent,
		SenderFirstName:   client.sender.FirstName,
		SenderLastName:    client.sender.LastName,
		SenderRole:        client.identity.Role,
	}

	if err := s.messages.Save(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.ChatMessageResponse{}, zero, "", fmt.Errorf("persist message: %w", err)
	}

	if err := s.rooms.Touch(spanCtx, room.ID); err != nil {
		s.logger.Warn().Err(err).Uint("room_id", room.ID).Msg("failed to touch room")
	}

	observability.ChatMessagesSent().Inc()

	return dto.NewChatMessageResponse(model), filterResult, content, nil
}

// handleMarkRead flips the read flag on the other party's messages. Any
// authorized role may mark a room read, including admins.
func (s *chatService) handleMarkRead(client *chatClient, roomID uint) {
	ctx, cancel := context.WithTimeout(client.baseCtx, persistenceTimeout)
	defer cancel()

	if _, err := s.authorizer.Authorize(ctx, roomID, client.identity); err != nil {
		client.enqueue(dto.ServerEvent{Event: dto.EventError, Data: dto.ErrorMessage{Message: "access denied"}})
		return
	}

	if _, err := s.messages.MarkReadForReader(ctx, roomID, client.identity.UserID); err != nil {
		s.logger.Error().Err(err).Uint("room_id", roomID).Msg("mark as read failed")
		client.enqueue(dto.ServerEvent{Event: dto.EventError, Data: dto.ErrorMessage{Message: "failed to mark room as read"}})
	}
}

// handleTyping relays start/stop signals. Unauthorized signals are dropped
// silently; typing is a low-value, high-frequency event.
func (s *chatService) handleTyping(client *chatClient, roomID uint, active bool) {
	ctx, cancel := context.WithTimeout(client.baseCtx, persistenceTimeout)
	defer cancel()

	if _, err := s.authorizer.Authorize(ctx, roomID, client.identity); err != nil {
		return
	}

	event := dto.EventTyping
	if !active {
		event = dto.EventTypingStop
	}

	s.broadcastRoom(ctx, roomID, dto.ServerEvent{Event: event, Data: dto.PresenceEvent{
		RoomID: roomID,
		UserID: client.identity.UserID,
		Role:   client.identity.Role,
	}}, client)
}

// History returns room messages for an authorized identity, oldest first.
func (s *chatService) History(ctx context.Context, identity access.Identity, query dto.ChatHistoryQuery) ([]dto.ChatMessageResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, err
	}

	if _, err := s.authorizer.Authorize(ctx, query.RoomID, identity); err != nil {
		return nil, err
	}

	before := time.Time{}
	if query.Before != nil {
		before = *query.Before
	}

	messages, err := s.messages.ListByRoom(ctx, query.RoomID, before, query.Limit)
	if err != nil {
		return nil, err
	}

	return dto.NewChatMessageResponseSlice(messages), nil
}

// broadcastRoom delivers event to the room's local members (excluding the
// acting connection) and publishes it for peer instances. Publishing happens
// only after the event's cause is durable; callers invoke this post-persist.
func (s *chatService) broadcastRoom(ctx context.Context, roomID uint, event dto.ServerEvent, except *chatClient) {
	s.hub.broadcast(roomID, event, except)

	payload, err := json.Marshal(event.Data)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", event.Event).Msg("failed to marshal bus payload")
		return
	}

	if err := s.bus.Publish(ctx, bus.Event{
		Source:  s.nodeID,
		Kind:    event.Event,
		RoomID:  roomID,
		Payload: payload,
	}); err != nil {
		s.logger.Warn().Err(err).Str("event", event.Event).Msg("failed to publish bus event")
	}
}

func (s *chatService) handleBusEvent(event bus.Event) {
	if event.Source == s.nodeID {
		return
	}

	observability.BusEventsReplayed().WithLabelValues(event.Kind).Inc()
	s.hub.broadcast(event.RoomID, dto.ServerEvent{
		Event: event.Kind,
		Data:  json.RawMessage(event.Payload),
	}, nil)
}

// notifyOffline triggers an offline notification for each room participant
// without a live connection anywhere in the cluster. Detached from the send
// pipeline: failures are logged, never surfaced to the sender.
func (s *chatService) notifyOffline(message dto.ChatMessageResponse) {
	ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
	defer cancel()

	room, err := s.rooms.FindByID(ctx, message.ChatRoomID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("room_id", message.ChatRoomID).Msg("offline notification room lookup failed")
		return
	}

	for _, recipient := range s.roomParticipants(ctx, room) {
		if recipient == message.SenderID {
			continue
		}

		online, err := s.presence.IsUserInRoom(ctx, room.ID, recipient)
		if err != nil {
			s.logger.Warn().Err(err).Uint("user_id", recipient).Msg("presence lookup failed, skipping notification")
			continue
		}
		if online {
			continue
		}

		if err := s.notifier.Notify(ctx, NotificationInput{
			UserID:  recipient,
			Type:    notificationTypeNewMessage,
			Title:   "New message",
			Message: preview(message.Content),
			Link:    fmt.Sprintf("/chat/rooms/%d", room.ID),
			Metadata: map[string]interface{}{
				"roomId":    room.ID,
				"messageId": message.ID,
			},
		}); err != nil {
			s.logger.Warn().Err(err).Uint("user_id", recipient).Msg("offline notification failed")
		}
	}
}

// roomParticipants resolves the user IDs behind the room's two profiles.
func (s *chatService) roomParticipants(ctx context.Context, room models.ChatRoom) []uint {
	participants := make([]uint, 0, 2)

	if customer, err := s.profiles.CustomerByID(ctx, room.CustomerID); err == nil {
		participants = append(participants, customer.UserID)
	} else {
		s.logger.Warn().Err(err).Uint("room_id", room.ID).Msg("customer profile lookup failed")
	}

	if vendor, err := s.profiles.VendorByID(ctx, room.VendorID); err == nil {
		participants = append(participants, vendor.UserID)
	} else {
		s.logger.Warn().Err(err).Uint("room_id", room.ID).Msg("vendor profile lookup failed")
	}

	return participants
}

// senderSnapshot resolves the denormalized sender fields stored on each
// message. Admins never write, so a missing profile is only logged.
func (s *chatService) senderSnapshot(ctx context.Context, identity access.Identity) dto.MessageSender {
	ctx, cancel := context.WithTimeout(ctx, persistenceTimeout)
	defer cancel()

	snapshot := dto.MessageSender{Role: identity.Role}

	switch identity.Role {
	case models.RoleCustomer:
		if profile, err := s.profiles.CustomerByUserID(ctx, identity.UserID); err == nil {
			snapshot.FirstName = profile.FirstName
			snapshot.LastName = profile.LastName
		}
	case models.RoleVendor:
		if profile, err := s.profiles.VendorByUserID(ctx, identity.UserID); err == nil {
			snapshot.FirstName = profile.FirstName
			snapshot.LastName = profile.LastName
		}
	}

	return snapshot
}

// preview truncates content for the notification body.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= notificationPreviewRunes {
		return content
	}
	return string(runes[:notificationPreviewRunes]) + "..."
}
