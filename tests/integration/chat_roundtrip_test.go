package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ordelia/chat-api/internal/access"
	"github.com/ordelia/chat-api/internal/bus"
	"github.com/ordelia/chat-api/internal/dto"
	"github.com/ordelia/chat-api/internal/handler"
	"github.com/ordelia/chat-api/internal/middleware"
	"github.com/ordelia/chat-api/internal/models"
	"github.com/ordelia/chat-api/internal/moderation"
	"github.com/ordelia/chat-api/internal/presence"
	"github.com/ordelia/chat-api/internal/ratelimit"
	"github.com/ordelia/chat-api/internal/repository"
	"github.com/ordelia/chat-api/internal/service"
)

const jwtTestSecret = "integration-secret"

type chatStack struct {
	app     *fiber.App
	baseURL string
	db      *gorm.DB
}

func setupChatStack(t *testing.T) *chatStack {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:chat_roundtrip?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ChatRoom{},
		&models.ChatMessage{},
		&models.CustomerProfile{},
		&models.VendorProfile{},
		&models.Notification{},
	))
	t.Cleanup(func() {
		db.Exec("DELETE FROM chat_messages")
		db.Exec("DELETE FROM chat_rooms")
		db.Exec("DELETE FROM customer_profiles")
		db.Exec("DELETE FROM vendor_profiles")
		db.Exec("DELETE FROM notifications")
	})

	server := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := zerolog.New(io.Discard)
	validate := validator.New(validator.WithRequiredStructEnabled())

	roomRepo := repository.NewRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	eventBus := bus.NewRedisBus(redisClient, "test:chat", logger)
	t.Cleanup(func() { _ = eventBus.Close() })

	notificationService := service.NewNotificationService(notificationRepo, redisClient, "", nil, validate, logger)

	chatService := service.NewChatService(service.ChatServiceParams{
		Messages:   messageRepo,
		Profiles:   profileRepo,
		Rooms:      roomRepo,
		Authorizer: access.NewAuthorizer(roomRepo, profileRepo),
		Limiter:    ratelimit.NewLimiter(),
		Filter:     moderation.NewFilter(),
		Presence:   presence.NewRegistry(redisClient, "test:presence"),
		Bus:        eventBus,
		Notifier:   notificationService.(service.Notifier),
		Validator:  validate,
		Logger:     logger,
	})
	require.NoError(t, chatService.Start(context.Background()))

	roomService := service.NewRoomService(roomRepo, messageRepo, profileRepo, validate, logger)

	app := fiber.New()
	app.Use(middleware.CorrelationID())

	chatGroup := app.Group("/api/v1/chat", middleware.JWTProtected(jwtTestSecret))
	handler.NewChatHandler(chatService, roomService, validate, logger).Register(chatGroup)

	baseURL, shutdown := startFiberApp(t, app)
	t.Cleanup(shutdown)

	return &chatStack{app: app, baseURL: baseURL, db: db}
}

func (s *chatStack) seedRoom(t *testing.T) models.ChatRoom {
	t.Helper()

	require.NoError(t, s.db.Create(&models.CustomerProfile{ID: 100, UserID: 10, FirstName: "Ana", LastName: "Kova"}).Error)
	require.NoError(t, s.db.Create(&models.VendorProfile{ID: 200, UserID: 20, StoreName: "Brick Lane", FirstName: "Ben", LastName: "Ferro"}).Error)

	room := models.ChatRoom{OrderItemID: 500, CustomerID: 100, VendorID: 200, IsActive: true}
	require.NoError(t, s.db.Create(&room).Error)
	return room
}

func signToken(t *testing.T, userID uint, role string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(jwtTestSecret))
	require.NoError(t, err)
	return signed
}

func dialChat(t *testing.T, baseURL, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/chat/ws?token=" + token
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type wireEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// awaitEvent reads frames until the wanted event arrives, skipping presence
// chatter that depends on connection timing.
func awaitEvent(t *testing.T, conn *websocket.Conn, want string) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for time.Now().Before(deadline) {
		var envelope wireEnvelope
		require.NoError(t, conn.ReadJSON(&envelope))
		if envelope.Event == want {
			return envelope.Data
		}
		switch envelope.Event {
		case "user_online", "user_offline", "user_typing", "user_stopped_typing":
			continue
		default:
			t.Fatalf("unexpected event %q while waiting for %q", envelope.Event, want)
		}
	}

	t.Fatalf("timed out waiting for event %q", want)
	return nil
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wireEnvelope{Event: event, Data: payload}))
}

func TestChatMessageRoundTrip(t *testing.T) {
	stack := setupChatStack(t)
	room := stack.seedRoom(t)

	customer := dialChat(t, stack.baseURL, signToken(t, 10, "customer"))
	vendor := dialChat(t, stack.baseURL, signToken(t, 20, "vendor"))

	// Both sides are auto-joined to their room on connect; give the second
	// connection a moment to register before sending.
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, customer, "send_message", dto.ChatSendRequest{RoomID: room.ID, Content: "hello", TempID: "tmp-42"})

	ackRaw := awaitEvent(t, customer, "message_sent_ack")
	var ack dto.MessageAck
	require.NoError(t, json.Unmarshal(ackRaw, &ack))
	require.Equal(t, "tmp-42", ack.TempID)
	require.Equal(t, "hello", ack.Message.Content)
	require.Equal(t, "Ana", ack.Message.Sender.FirstName)
	require.Equal(t, "customer", ack.Message.Sender.Role)

	recvRaw := awaitEvent(t, vendor, "message_received")
	var received dto.MessageReceived
	require.NoError(t, json.Unmarshal(recvRaw, &received))
	require.Equal(t, ack.Message.ID, received.Message.ID)
	require.Equal(t, "hello", received.Message.Content)
	require.False(t, received.Message.IsRead)

	// The message is durable and visible through the history endpoint.
	var count int64
	require.NoError(t, stack.db.Model(&models.ChatMessage{}).Where("chat_room_id = ?", room.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestChatRedactionRoundTrip(t *testing.T) {
	stack := setupChatStack(t)
	room := stack.seedRoom(t)

	customer := dialChat(t, stack.baseURL, signToken(t, 10, "customer"))
	vendor := dialChat(t, stack.baseURL, signToken(t, 20, "vendor"))
	time.Sleep(100 * time.Millisecond)

	sendEvent(t, customer, "send_message", dto.ChatSendRequest{RoomID: room.ID, Content: "call 0712345678", TempID: "tmp-7"})

	ackRaw := awaitEvent(t, customer, "message_sent_ack")
	var ack dto.MessageAck
	require.NoError(t, json.Unmarshal(ackRaw, &ack))
	require.NotContains(t, ack.Message.Content, "0712345678")
	require.True(t, ack.Message.HasBlockedContent)

	blockedRaw := awaitEvent(t, customer, "contact_blocked")
	var blocked dto.ContactBlocked
	require.NoError(t, json.Unmarshal(blockedRaw, &blocked))
	require.Contains(t, blocked.OriginalContent, "0712345678")

	recvRaw := awaitEvent(t, vendor, "message_received")
	var received dto.MessageReceived
	require.NoError(t, json.Unmarshal(recvRaw, &received))
	require.NotContains(t, received.Message.Content, "0712345678")

	// Only the filtered text is persisted.
	var stored models.ChatMessage
	require.NoError(t, stack.db.Where("id = ?", ack.Message.ID).First(&stored).Error)
	require.NotContains(t, stored.Content, "0712345678")
}

func TestChatUpgradeRejectedWithoutToken(t *testing.T) {
	stack := setupChatStack(t)

	url := "ws" + strings.TrimPrefix(stack.baseURL, "http") + "/api/v1/chat/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial(url, nil)
	require.Error(t, err)
	if conn != nil {
		_ = conn.Close()
	}
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestChatHistoryEndpoint(t *testing.T) {
	stack := setupChatStack(t)
	room := stack.seedRoom(t)

	customer := dialChat(t, stack.baseURL, signToken(t, 10, "customer"))
	sendEvent(t, customer, "send_message", dto.ChatSendRequest{RoomID: room.ID, Content: "for the record"})
	awaitEvent(t, customer, "message_sent_ack")

	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/chat/history?room_id=%d", stack.baseURL, room.ID), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signToken(t, 20, "vendor"))

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                      `json:"success"`
		Data    []dto.ChatMessageResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.Success)
	require.Len(t, body.Data, 1)
	require.Equal(t, "for the record", body.Data[0].Content)
}

func startFiberApp(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}
