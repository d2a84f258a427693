package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/ordelia/chat-api/internal/dto"
	"github.com/ordelia/chat-api/internal/service"
	"github.com/ordelia/chat-api/internal/utils"
)

// RoomProvisionHandler receives order-confirmation callbacks from the order
// system and provisions one room per line item. Mounted on the internal
// surface, never exposed publicly.
type RoomProvisionHandler struct {
	rooms  service.RoomService
	logger zerolog.Logger
}

// NewRoomProvisionHandler creates a provisioning handler instance.
func NewRoomProvisionHandler(rooms service.RoomService, logger zerolog.Logger) *RoomProvisionHandler {
	return &RoomProvisionHandler{
		rooms:  rooms,
		logger: logger.With().Str("component", "room_provision_handler").Logger(),
	}
}

// Register binds the provisioning route.
func (h *RoomProvisionHandler) Register(router fiber.Router) {
	router.Post("/orders/:orderId/rooms", h.provision)
}

func (h *RoomProvisionHandler) provision(c *fiber.Ctx) error {
	orderID, err := parseParamUint(c, "orderId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid order id")
	}

	var payload dto.RoomProvisionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	// The path parameter is authoritative.
	payload.OrderID = orderID

	rooms, err := h.rooms.ProvisionRooms(requestContext(c), payload)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotPayable):
			return utils.SendError(c, fiber.StatusConflict, "order has not reached payment confirmation")
		case isValidationError(err):
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		default:
			requestLogger(h.logger, c).Error().Err(err).Uint("order_id", orderID).Msg("room provisioning failed")
			return utils.SendError(c, fiber.StatusInternalServerError, "failed to provision rooms")
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "rooms provisioned", rooms)
}
