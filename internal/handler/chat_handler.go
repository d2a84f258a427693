package handler

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/ordelia/chat-api/internal/access"
	"github.com/ordelia/chat-api/internal/dto"
	"github.com/ordelia/chat-api/internal/middleware"
	"github.com/ordelia/chat-api/internal/models"
	"github.com/ordelia/chat-api/internal/service"
	"github.com/ordelia/chat-api/internal/utils"
)

// ChatHandler wires chat endpoints including the websocket upgrade.
type ChatHandler struct {
	chat      service.ChatService
	rooms     service.RoomService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewChatHandler creates a chat handler instance.
func NewChatHandler(chat service.ChatService, rooms service.RoomService, validator *validator.Validate, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		chat:      chat,
		rooms:     rooms,
		validator: validator,
		logger:    logger.With().Str("component", "chat_handler").Logger(),
	}
}

// Register binds chat routes under the provided router group. The group must
// already carry the JWT middleware; identity locals are assumed present.
func (h *ChatHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
	router.Get("/rooms", h.listRooms)
	router.Get("/history", h.history)
}

func (h *ChatHandler) handleConnection(conn *websocket.Conn) {
	identity, ok := websocketIdentity(conn)
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
		_ = conn.Close()
		return
	}

	h.logger.Info().Uint("user_id", identity.UserID).Str("role", identity.Role).Msg("chat websocket connected")
	h.chat.ServeConnection(conn, identity)
	h.logger.Info().Uint("user_id", identity.UserID).Msg("chat websocket disconnected")
}

func (h *ChatHandler) listRooms(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	rooms, err := h.rooms.ListRoomsForUser(requestContext(c), identity)
	if err != nil {
		if errors.Is(err, access.ErrAccessDenied) {
			return utils.SendError(c, fiber.StatusForbidden, "access denied")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list chat rooms")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list chat rooms")
	}

	return utils.SendSuccess(c, "chat rooms", rooms)
}

func (h *ChatHandler) history(c *fiber.Ctx) error {
	identity, ok := identityFromContext(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "user not authenticated")
	}

	roomID, err := parseQueryUint(c, "room_id")
	if err != nil || roomID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "room_id required")
	}

	var beforePtr *time.Time
	if before := c.Query("before"); before != "" {
		parsed, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid before timestamp")
		}
		beforePtr = &parsed
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}

	query := dto.ChatHistoryQuery{
		RoomID: roomID,
		Before: beforePtr,
		Limit:  limit,
	}

	messages, err := h.chat.History(requestContext(c), identity, query)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrRoomNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "chat room not found")
		case errors.Is(err, access.ErrAccessDenied):
			return utils.SendError(c, fiber.StatusForbidden, "access denied")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Msg("failed to load chat history")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to load chat history")
		}
	}

	return utils.SendSuccess(c, "chat history", messages)
}

func websocketIdentity(conn *websocket.Conn) (access.Identity, bool) {
	userID, okID := conn.Locals("user_id").(uint)
	role, okRole := conn.Locals("user_role").(string)
	if !okID || userID == 0 || !okRole || !validRole(role) {
		return access.Identity{}, false
	}
	return access.Identity{UserID: userID, Role: role}, true
}

func identityFromContext(c *fiber.Ctx) (access.Identity, bool) {
	userID := userIDFromContext(c)
	role := userRoleFromContext(c)
	if userID == 0 || !validRole(role) {
		return access.Identity{}, false
	}
	return access.Identity{UserID: userID, Role: role}, true
}

func validRole(role string) bool {
	switch role {
	case models.RoleCustomer, models.RoleVendor, models.RoleAdmin:
		return true
	}
	return false
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}
