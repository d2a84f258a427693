package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ordelia/chat-api/internal/access"
	"github.com/ordelia/chat-api/internal/service"
	"github.com/ordelia/chat-api/internal/utils"
)

// AdminChatHandler exposes moderation views over rooms and messages. Routes
// are mounted behind the admin RBAC middleware.
type AdminChatHandler struct {
	rooms  service.RoomService
	logger zerolog.Logger
}

// NewAdminChatHandler creates an admin chat handler instance.
func NewAdminChatHandler(rooms service.RoomService, logger zerolog.Logger) *AdminChatHandler {
	return &AdminChatHandler{
		rooms:  rooms,
		logger: logger.With().Str("component", "admin_chat_handler").Logger(),
	}
}

// Register binds the admin moderation routes.
func (h *AdminChatHandler) Register(router fiber.Router) {
	router.Get("/rooms", h.listRooms)
	router.Get("/rooms/:id/messages", h.listMessages)
	router.Patch("/rooms/:id/active", h.setActive)
}

func (h *AdminChatHandler) listRooms(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	rooms, err := h.rooms.ListAllRooms(requestContext(c), limit, offset)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list rooms for moderation")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list rooms")
	}

	return utils.SendSuccess(c, "chat rooms", rooms)
}

func (h *AdminChatHandler) listMessages(c *fiber.Ctx) error {
	roomID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid room id")
	}

	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	blockedOnly := c.QueryBool("blocked_only")

	messages, err := h.rooms.ListRoomMessages(requestContext(c), roomID, blockedOnly, limit, offset)
	if err != nil {
		if errors.Is(err, access.ErrRoomNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "chat room not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list room messages")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list messages")
	}

	return utils.SendSuccess(c, "chat messages", messages)
}

func (h *AdminChatHandler) setActive(c *fiber.Ctx) error {
	roomID, err := parseParamUint(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid room id")
	}

	var payload struct {
		IsActive bool `json:"isActive"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	if err := h.rooms.SetRoomActive(requestContext(c), roomID, payload.IsActive); err != nil {
		if errors.Is(err, access.ErrRoomNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, "chat room not found")
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to update room state")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to update room")
	}

	return utils.SendSuccess(c, "chat room updated", fiber.Map{"id": roomID, "isActive": payload.IsActive})
}
