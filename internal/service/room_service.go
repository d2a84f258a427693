package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/ordelia/chat-api/internal/access"
	"github.com/ordelia/chat-api/internal/dto"
	"github.com/ordelia/chat-api/internal/models"
	"github.com/ordelia/chat-api/internal/repository"
)

// Order statuses that permit room provisioning.
const statusPaymentConfirmed = "payment_confirmed"

// ErrOrderNotPayable rejects provisioning for orders that have not reached
// payment confirmation.
var ErrOrderNotPayable = errors.New("order has not reached payment confirmation")

// RoomService provisions rooms from confirmed orders and lists rooms per
// identity.
type RoomService interface {
	// ProvisionRooms creates one room per order line item. Safe to call
	// repeatedly for the same order; existing rooms are returned untouched.
	ProvisionRooms(ctx context.Context, payload dto.RoomProvisionRequest) ([]dto.ChatRoomResponse, error)
	ListRoomsForUser(ctx context.Context, identity access.Identity) ([]dto.ChatRoomResponse, error)
	ListAllRooms(ctx context.Context, limit, offset int) ([]dto.ChatRoomResponse, error)
	ListRoomMessages(ctx context.Context, roomID uint, blockedOnly bool, limit, offset int) ([]dto.ChatMessageResponse, error)
	SetRoomActive(ctx context.Context, roomID uint, active bool) error
}

type roomService struct {
	rooms     repository.RoomRepository
	messages  repository.MessageRepository
	profiles  repository.ProfileRepository
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewRoomService constructs a room service.
func NewRoomService(rooms repository.RoomRepository, messages repository.MessageRepository, profiles repository.ProfileRepository, validate *validator.Validate, logger zerolog.Logger) RoomService {
	return &roomService{
		rooms:     rooms,
		messages:  messages,
		profiles:  profiles,
		validator: validate,
		logger:    logger.With().Str("component", "room_service").Logger(),
		tracer:    otel.Tracer("github.com/ordelia/chat-api/internal/service/room"),
	}
}

func (s *roomService) ProvisionRooms(ctx context.Context, payload dto.RoomProvisionRequest) ([]dto.ChatRoomResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return nil, err
	}

	if payload.Status != statusPaymentConfirmed {
		return nil, ErrOrderNotPayable
	}

	attrs := []attribute.KeyValue{
		attribute.Int64("order.id", int64(payload.OrderID)),
		attribute.Int("order.items", len(payload.Items)),
	}
	spanCtx, span := s.tracer.Start(ctx, "rooms.provision", trace.WithAttributes(attrs...))
	defer span.End()

	out := make([]dto.ChatRoomResponse, 0, len(payload.Items))
	for _, item := range payload.Items {
		room := models.ChatRoom{
			OrderItemID: item.OrderItemID,
			CustomerID:  item.CustomerProfileID,
			VendorID:    item.VendorProfileID,
			IsActive:    true,
		}
		if err := s.rooms.CreateIfAbsent(spanCtx, &room); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("provision room for order item %d: %w", item.OrderItemID, err)
		}
		out = append(out, dto.NewChatRoomResponse(room))
	}

	s.logger.Info().
		Uint("order_id", payload.OrderID).
		Int("rooms", len(out)).
		Msg("rooms provisioned for order")

	return out, nil
}

// ListRoomsForUser returns the identity's rooms, most recently active first,
// each with its latest message as a preview.
func (s *roomService) ListRoomsForUser(ctx context.Context, identity access.Identity) ([]dto.ChatRoomResponse, error) {
	var (
		rooms []models.ChatRoom
		err   error
	)

	switch identity.Role {
	case models.RoleCustomer:
		profile, perr := s.profiles.CustomerByUserID(ctx, identity.UserID)
		if perr != nil {
			if errors.Is(perr, gorm.ErrRecordNotFound) {
				return []dto.ChatRoomResponse{}, nil
			}
			return nil, perr
		}
		rooms, err = s.rooms.ListByCustomer(ctx, profile.ID)
	case models.RoleVendor:
		profile, perr := s.profiles.VendorByUserID(ctx, identity.UserID)
		if perr != nil {
			if errors.Is(perr, gorm.ErrRecordNotFound) {
				return []dto.ChatRoomResponse{}, nil
			}
			return nil, perr
		}
		rooms, err = s.rooms.ListByVendor(ctx, profile.ID)
	default:
		return nil, access.ErrAccessDenied
	}

	if err != nil {
		return nil, err
	}

	return s.withPreviews(ctx, rooms), nil
}

func (s *roomService) ListAllRooms(ctx context.Context, limit, offset int) ([]dto.ChatRoomResponse, error) {
	rooms, err := s.rooms.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.withPreviews(ctx, rooms), nil
}

func (s *roomService) ListRoomMessages(ctx context.Context, roomID uint, blockedOnly bool, limit, offset int) ([]dto.ChatMessageResponse, error) {
	if _, err := s.rooms.FindByID(ctx, roomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, access.ErrRoomNotFound
		}
		return nil, err
	}

	messages, err := s.messages.ListForModeration(ctx, roomID, blockedOnly, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewChatMessageResponseSlice(messages), nil
}

func (s *roomService) SetRoomActive(ctx context.Context, roomID uint, active bool) error {
	if _, err := s.rooms.FindByID(ctx, roomID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return access.ErrRoomNotFound
		}
		return err
	}
	return s.rooms.SetActive(ctx, roomID, active)
}

func (s *roomService) withPreviews(ctx context.Context, rooms []models.ChatRoom) []dto.ChatRoomResponse {
	out := make([]dto.ChatRoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response := dto.NewChatRoomResponse(room)

		latest, err := s.messages.LatestByRoom(ctx, room.ID)
		switch {
		case err == nil:
			preview := dto.NewChatMessageResponse(latest)
			response.LatestMessage = &preview
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Freshly provisioned room with no traffic yet.
		default:
			s.logger.Warn().Err(err).Uint("room_id", room.ID).Msg("latest message lookup failed")
		}

		out = append(out, response)
	}
	return out
}
