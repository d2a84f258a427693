package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/ordelia/chat-api/internal/access"
	"github.com/ordelia/chat-api/internal/dto"
)

const (
	clientSendBufferSize = 32
	keepaliveInterval    = 30 * time.Second
)

// chatClient is one live websocket connection with its authenticated
// identity and sender snapshot.
type chatClient struct {
	conn     *websocket.Conn
	send     chan dto.ServerEvent
	identity access.Identity
	sender   dto.MessageSender
	service  *chatService
	baseCtx  context.Context

	roomMu sync.Mutex
	rooms  map[uint]struct{}

	closed chan struct{}
	once   sync.Once
}

func (c *chatClient) trackRoom(roomID uint) {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	c.rooms[roomID] = struct{}{}
}

func (c *chatClient) untrackRoom(roomID uint) {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	delete(c.rooms, roomID)
}

func (c *chatClient) joinedRooms() []uint {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()

	rooms := make([]uint, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// enqueue hands event to the writer pump without blocking; a consumer that
// cannot keep up loses events rather than stalling the hub.
func (c *chatClient) enqueue(event dto.ServerEvent) {
	select {
	case <-c.closed:
		return
	default:
	}

	select {
	case c.send <- event:
	default:
		c.service.logger.Warn().
			Uint("user_id", c.identity.UserID).
			Str("event", event.Event).
			Msg("dropping event for slow client")
	}
}

// reader processes inbound events in arrival order; each connection's events
// are handled sequentially so a sender's own messages never reorder.
func (c *chatClient) reader() {
	defer c.close()

	for {
		var envelope dto.ClientEvent
		if err := c.conn.ReadJSON(&envelope); err != nil {
			c.service.logger.Debug().Err(err).Uint("user_id", c.identity.UserID).Msg("chat read loop ended")
			return
		}

		c.dispatch(envelope)
	}
}

func (c *chatClient) dispatch(envelope dto.ClientEvent) {
	switch envelope.Event {
	case dto.EventSendMsg:
		var payload dto.ChatSendRequest
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			c.enqueue(dto.ServerEvent{Event: dto.EventMsgError, Data: dto.MessageError{
				Message: "malformed send_message payload",
				Code:    dto.CodeValidation,
			}})
			return
		}
		c.service.handleSend(c, payload)

	case dto.EventJoinRoom:
		if roomID, ok := c.roomRef(envelope.Data); ok {
			c.service.handleJoin(c, roomID)
		}

	case dto.EventLeaveRoom:
		if roomID, ok := c.roomRef(envelope.Data); ok {
			c.service.handleLeave(c, roomID)
		}

	case dto.EventMarkRead:
		if roomID, ok := c.roomRef(envelope.Data); ok {
			c.service.handleMarkRead(c, roomID)
		}

	case dto.EventTypingOn:
		if roomID, ok := c.roomRef(envelope.Data); ok {
			c.service.handleTyping(c, roomID, true)
		}

	case dto.EventTypingOff:
		if roomID, ok := c.roomRef(envelope.Data); ok {
			c.service.handleTyping(c, roomID, false)
		}

	default:
		c.enqueue(dto.ServerEvent{Event: dto.EventError, Data: dto.ErrorMessage{Message: "unknown event"}})
	}
}

func (c *chatClient) roomRef(data json.RawMessage) (uint, bool) {
	var ref dto.RoomRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.RoomID == 0 {
		c.enqueue(dto.ServerEvent{Event: dto.EventError, Data: dto.ErrorMessage{Message: "roomId is required"}})
		return 0, false
	}
	return ref.RoomID, true
}

func (c *chatClient) writer() {
	defer c.close()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat write loop terminated")
				return
			}
		case <-time.After(keepaliveInterval):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.disconnect(c)
		_ = c.conn.Close()
	})
}
