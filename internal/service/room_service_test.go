package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/ordelia/chat-api/internal/access"
	"github.com/ordelia/chat-api/internal/dto"
	"github.com/ordelia/chat-api/internal/models"
)

func newRoomServiceFixture() (RoomService, *roomRepoStub, *messageRepoStub) {
	rooms := newRoomRepoStub()
	messages := &messageRepoStub{}
	profiles := &profileRepoStub{
		customers: map[uint]models.CustomerProfile{
			100: {ID: 100, UserID: 10, FirstName: "Ana", LastName: "Kova"},
		},
		vendors: map[uint]models.VendorProfile{
			200: {ID: 200, UserID: 20, StoreName: "Brick Lane"},
		},
	}
	svc := NewRoomService(rooms, messages, profiles, validator.New(validator.WithRequiredStructEnabled()), testLogger())
	return svc, rooms, messages
}

func TestProvisionRoomsPerOrderItem(t *testing.T) {
	svc, _, _ := newRoomServiceFixture()

	created, err := svc.ProvisionRooms(context.Background(), dto.RoomProvisionRequest{
		OrderID: 1,
		Status:  "payment_confirmed",
		Items: []dto.RoomProvisionItem{
			{OrderItemID: 500, CustomerProfileID: 100, VendorProfileID: 200},
			{OrderItemID: 501, CustomerProfileID: 100, VendorProfileID: 200},
		},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.True(t, created[0].IsActive)
	require.NotEqual(t, created[0].ID, created[1].ID)
}

func TestProvisionRoomsIdempotent(t *testing.T) {
	svc, _, _ := newRoomServiceFixture()

	payload := dto.RoomProvisionRequest{
		OrderID: 1,
		Status:  "payment_confirmed",
		Items:   []dto.RoomProvisionItem{{OrderItemID: 500, CustomerProfileID: 100, VendorProfileID: 200}},
	}

	first, err := svc.ProvisionRooms(context.Background(), payload)
	require.NoError(t, err)
	second, err := svc.ProvisionRooms(context.Background(), payload)
	require.NoError(t, err)

	require.Equal(t, first[0].ID, second[0].ID)
}

func TestProvisionRoomsRejectsUnpaidOrder(t *testing.T) {
	svc, _, _ := newRoomServiceFixture()

	_, err := svc.ProvisionRooms(context.Background(), dto.RoomProvisionRequest{
		OrderID: 1,
		Status:  "pending_payment",
		Items:   []dto.RoomProvisionItem{{OrderItemID: 500, CustomerProfileID: 100, VendorProfileID: 200}},
	})
	require.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestListRoomsForUserIncludesPreview(t *testing.T) {
	svc, rooms, messages := newRoomServiceFixture()

	room := models.ChatRoom{OrderItemID: 500, CustomerID: 100, VendorID: 200, IsActive: true}
	require.NoError(t, rooms.CreateIfAbsent(context.Background(), &room))
	require.NoError(t, messages.Save(context.Background(), &models.ChatMessage{
		ChatRoomID: room.ID,
		SenderID:   20,
		Content:    "latest word",
	}))

	listed, err := svc.ListRoomsForUser(context.Background(), access.Identity{UserID: 10, Role: models.RoleCustomer})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].LatestMessage)
	require.Equal(t, "latest word", listed[0].LatestMessage.Content)

	// The vendor side resolves through its own profile.
	listed, err = svc.ListRoomsForUser(context.Background(), access.Identity{UserID: 20, Role: models.RoleVendor})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestListRoomsForUnknownProfileIsEmpty(t *testing.T) {
	svc, _, _ := newRoomServiceFixture()

	listed, err := svc.ListRoomsForUser(context.Background(), access.Identity{UserID: 77, Role: models.RoleCustomer})
	require.NoError(t, err)
	require.Empty(t, listed)
}

func TestListRoomMessagesBlockedOnly(t *testing.T) {
	svc, rooms, messages := newRoomServiceFixture()

	room := models.ChatRoom{OrderItemID: 500, CustomerID: 100, VendorID: 200, IsActive: true}
	require.NoError(t, rooms.CreateIfAbsent(context.Background(), &room))
	require.NoError(t, messages.Save(context.Background(), &models.ChatMessage{ChatRoomID: room.ID, SenderID: 10, Content: "clean"}))
	require.NoError(t, messages.Save(context.Background(), &models.ChatMessage{ChatRoomID: room.ID, SenderID: 10, Content: "[PHONE_BLOCKED]", HasBlockedContent: true}))

	all, err := svc.ListRoomMessages(context.Background(), room.ID, false, 50, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	blocked, err := svc.ListRoomMessages(context.Background(), room.ID, true, 50, 0)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	require.True(t, blocked[0].HasBlockedContent)

	_, err = svc.ListRoomMessages(context.Background(), 999, false, 50, 0)
	require.ErrorIs(t, err, access.ErrRoomNotFound)
}
