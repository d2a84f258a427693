// Package access decides whether an identity may read or write a chat room.
// Permission rules live here and nowhere else; each role variant has its own
// authorizer behind a single dispatch table.
package access

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ordelia/chat-api/internal/models"
	"github.com/ordelia/chat-api/internal/repository"
)

var (
	// ErrRoomNotFound indicates the referenced room does not exist.
	ErrRoomNotFound = errors.New("chat room not found")
	// ErrAccessDenied indicates the identity is not a participant of the
	// room. Callers surface this generically; the reason stays server-side.
	ErrAccessDenied = errors.New("access denied")
)

// Identity is the authenticated principal attached to a connection.
type Identity struct {
	UserID uint
	Role   string
}

// Authorizer resolves room access for an identity.
type Authorizer interface {
	// Authorize returns the room when identity may read it, ErrRoomNotFound
	// when the room does not exist, and ErrAccessDenied otherwise.
	Authorize(ctx context.Context, roomID uint, identity Identity) (models.ChatRoom, error)
	// CanWrite reports whether the role may post messages at all. ADMIN is
	// read-only across every room regardless of Authorize succeeding.
	CanWrite(role string) bool
}

type roleAuthorizer interface {
	authorize(ctx context.Context, room models.ChatRoom, identity Identity) error
}

type authorizer struct {
	rooms repository.RoomRepository
	roles map[string]roleAuthorizer
}

// NewAuthorizer builds the room access authorizer.
func NewAuthorizer(rooms repository.RoomRepository, profiles repository.ProfileRepository) Authorizer {
	return &authorizer{
		rooms: rooms,
		roles: map[string]roleAuthorizer{
			models.RoleAdmin:    adminAuthorizer{},
			models.RoleCustomer: customerAuthorizer{profiles: profiles},
			models.RoleVendor:   vendorAuthorizer{profiles: profiles},
		},
	}
}

func (a *authorizer) Authorize(ctx context.Context, roomID uint, identity Identity) (models.ChatRoom, error) {
	room, err := a.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ChatRoom{}, ErrRoomNotFound
		}
		return models.ChatRoom{}, err
	}

	variant, ok := a.roles[identity.Role]
	if !ok {
		return models.ChatRoom{}, ErrAccessDenied
	}

	if err := variant.authorize(ctx, room, identity); err != nil {
		return models.ChatRoom{}, err
	}

	return room, nil
}

func (a *authorizer) CanWrite(role string) bool {
	return role == models.RoleCustomer || role == models.RoleVendor
}

// adminAuthorizer grants read access to every room.
type adminAuthorizer struct{}

func (adminAuthorizer) authorize(context.Context, models.ChatRoom, Identity) error {
	return nil
}

// customerAuthorizer grants access when the room's customer profile is owned
// by the identity.
type customerAuthorizer struct {
	profiles repository.ProfileRepository
}

func (c customerAuthorizer) authorize(ctx context.Context, room models.ChatRoom, identity Identity) error {
	profile, err := c.profiles.CustomerByID(ctx, room.CustomerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccessDenied
		}
		return err
	}
	if profile.UserID != identity.UserID {
		return ErrAccessDenied
	}
	return nil
}

// vendorAuthorizer grants access when the room's vendor profile is owned by
// the identity.
type vendorAuthorizer struct {
	profiles repository.ProfileRepository
}

func (v vendorAuthorizer) authorize(ctx context.Context, room models.ChatRoom, identity Identity) error {
	profile, err := v.profiles.VendorByID(ctx, room.VendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccessDenied
		}
		return err
	}
	if profile.UserID != identity.UserID {
		return ErrAccessDenied
	}
	return nil
}
