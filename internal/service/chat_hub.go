package service

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ordelia/chat-api/internal/dto"
	"github.com/ordelia/chat-api/internal/observability"
)

// chatHub tracks which local connections are joined to which rooms. A
// connection may be joined to many rooms at once; cross-instance visibility
// is the bus's job, the hub only knows this process.
type chatHub struct {
	mu    sync.RWMutex
	rooms map[uint]map[*chatClient]struct{}
	log   zerolog.Logger
}

func newChatHub(logger zerolog.Logger) *chatHub {
	return &chatHub{
		rooms: make(map[uint]map[*chatClient]struct{}),
		log:   logger.With().Str("component", "chat_hub").Logger(),
	}
}

// join adds client to roomID's broadcast group. Reports whether the client
// was newly added.
func (h *chatHub) join(roomID uint, client *chatClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*chatClient]struct{})
		h.rooms[roomID] = members
	}
	if _, already := members[client]; already {
		return false
	}

	members[client] = struct{}{}
	client.trackRoom(roomID)
	observability.RoomMembershipsActive().Inc()
	h.log.Debug().Uint("room_id", roomID).Uint("user_id", client.identity.UserID).Msg("connection joined room")
	return true
}

// leave removes client from roomID's broadcast group. Reports whether the
// client was a member.
func (h *chatHub) leave(roomID uint, client *chatClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(roomID, client)
}

func (h *chatHub) leaveLocked(roomID uint, client *chatClient) bool {
	members, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, member := members[client]; !member {
		return false
	}

	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	client.untrackRoom(roomID)
	observability.RoomMembershipsActive().Dec()
	h.log.Debug().Uint("room_id", roomID).Uint("user_id", client.identity.UserID).Msg("connection left room")
	return true
}

// drop removes client from every room it is still joined to and returns the
// room IDs it was a member of, for the disconnect offline broadcast.
func (h *chatHub) drop(client *chatClient) []uint {
	h.mu.Lock()
	defer h.mu.Unlock()

	left := make([]uint, 0, len(client.joinedRooms()))
	for _, roomID := range client.joinedRooms() {
		if h.leaveLocked(roomID, client) {
			left = append(left, roomID)
		}
	}
	return left
}

// broadcast delivers event to every connection joined to roomID on this
// instance, except the excluded connection (nil to deliver to all).
func (h *chatHub) broadcast(roomID uint, event dto.ServerEvent, except *chatClient) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[roomID] {
		if client == except {
			continue
		}
		client.enqueue(event)
	}
}
