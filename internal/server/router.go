package server

import (
	"encoding/json"
	"log"

	"github.com/converge-im/realtime/internal/stats"
	"github.com/converge-im/realtime/internal/types"
	"github.com/go-playground/validator/v10"
)

// eventRouter decodes inbound events, validates their shape, and
// dispatches to the session handlers. Events from one connection are
// handled to completion in receipt order; a handler failure answers the
// sender with a scoped error event and never tears down the session.
type eventRouter struct {
	cs       *ChatServer
	log      *log.Logger
	validate *validator.Validate
}

func newEventRouter(cs *ChatServer) *eventRouter {
	return &eventRouter{
		cs:       cs,
		log:      cs.log,
		validate: validator.New(),
	}
}

func (er *eventRouter) dispatch(c *Client, ev *ClientEvent) {
	defer func() {
		if r := recover(); r != nil {
			er.log.Printf("panic handling %q from %s: %v", ev.Type, c.id, r)
			c.queueEvent(errorEvent(ev.Type, "internal error"))
		}
	}()

	er.cs.stats.Incr(stats.EventsProcessed)

	switch ev.Type {
	case EvAuthenticate:
		er.handleAuthenticate(c, ev)
	case EvJoinChat:
		er.handleJoinChat(c, ev)
	case EvLeaveChat:
		er.handleLeaveChat(c, ev)
	case EvTypingStart:
		er.handleTypingStart(c, ev)
	case EvTypingStop:
		er.handleTypingStop(c, ev)
	case EvMessageReaction:
		er.handleMessageReaction(c, ev)
	case EvMessageRead:
		er.handleMessageRead(c, ev)
	case EvPresenceUpdate:
		er.handlePresenceUpdate(c, ev)
	default:
		er.log.Printf("ignoring unknown event type %q from connection %s", ev.Type, c.id)
	}
}

// decode unmarshals and validates the payload, answering the sender
// with a scoped error event on failure.
func (er *eventRouter) decode(c *Client, ev *ClientEvent, dst any) bool {
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		er.log.Printf("invalid %q payload from %s: %v", ev.Type, c.id, err)
		c.queueEvent(errorEvent(ev.Type, "invalid payload"))
		return false
	}

	if err := er.validate.Struct(dst); err != nil {
		er.log.Printf("invalid %q payload from %s: %v", ev.Type, c.id, err)
		c.queueEvent(errorEvent(ev.Type, "missing required fields"))
		return false
	}

	return true
}

// requireAuth gates room-scoped operations on a completed authenticate.
func (er *eventRouter) requireAuth(c *Client, ev *ClientEvent) bool {
	if c.identity == nil {
		c.queueEvent(errorEvent(ev.Type, "not authenticated"))
		return false
	}

	return true
}

func (er *eventRouter) handleAuthenticate(c *Client, ev *ClientEvent) {
	var p AuthenticatePayload
	if !er.decode(c, ev, &p) {
		return
	}

	verified, err := er.cs.verifier.Verify(p.Token)
	if err != nil {
		er.log.Printf("authentication failed for connection %s: %v", c.id, err)
		c.queueEvent(errorEvent(ev.Type, "authentication failed"))
		return
	}

	if verified.Id != p.UserId {
		er.log.Printf("token subject %q does not match claimed user %q on connection %s", verified.Id, p.UserId, c.id)
		c.queueEvent(errorEvent(ev.Type, "authentication failed"))
		return
	}

	// A repeated authenticate overwrites the identity; clients should
	// not rely on re-authentication semantics.
	c.identity = &types.User{
		Id:       p.UserId,
		Nickname: p.Nickname,
	}

	c.queueEvent(authenticatedEvent(*c.identity))
	er.cs.notifyOnline(c)
}

func (er *eventRouter) handleJoinChat(c *Client, ev *ClientEvent) {
	if !er.requireAuth(c, ev) {
		return
	}

	var p JoinChatPayload
	if !er.decode(c, ev, &p) {
		return
	}

	participants := er.cs.registry.join(p.ChatId, c)
	c.addRoom(p.ChatId)

	c.queueEvent(&ServerEvent{
		Type: EvChatJoined,
		Payload: ChatJoinedPayload{
			ChatId:       p.ChatId,
			Participants: participants,
			Timestamp:    isoNow(),
		},
	})

	er.cs.notifyJoinedChat(c, p.ChatId)
}

func (er *eventRouter) handleLeaveChat(c *Client, ev *ClientEvent) {
	if !er.requireAuth(c, ev) {
		return
	}

	var p LeaveChatPayload
	if !er.decode(c, ev, &p) {
		return
	}

	// Cancel any pending typing timer first so a stray expiry cannot
	// fire into a room the connection has already left.
	c.timers.cancel(typingKey(p.ChatId))

	er.cs.registry.leave(p.ChatId, c)
	c.delRoom(p.ChatId)

	er.cs.notifyLeftChat(c, p.ChatId)
}

func (er *eventRouter) handleTypingStart(c *Client, ev *ClientEvent) {
	if !er.requireAuth(c, ev) {
		return
	}

	var p TypingStartPayload
	if !er.decode(c, ev, &p) {
		return
	}

	nickname := p.Nickname
	if nickname == "" {
		nickname = c.identity.Nickname
	}

	// Capture the identity now; the expiry callback runs on a timer
	// goroutine and must not read session state.
	userId := c.identity.Id
	chatId := p.ChatId

	c.timers.schedule(typingKey(chatId), er.cs.typingExpiry, func() {
		if !er.cs.registry.contains(chatId, c.id) {
			return
		}
		er.cs.notifyStoppedTyping(userId, chatId, c)
	})

	er.cs.notifyTyping(c, chatId, nickname)
}

func (er *eventRouter) handleTypingStop(c *Client, ev *ClientEvent) {
	if !er.requireAuth(c, ev) {
		return
	}

	var p TypingStopPayload
	if !er.decode(c, ev, &p) {
		return
	}

	// Stop requests are idempotent: the notification goes out whether
	// or not a timer was pending.
	c.timers.cancel(typingKey(p.ChatId))
	er.cs.notifyStoppedTyping(c.identity.Id, p.ChatId, c)
}

func (er *eventRouter) handleMessageReaction(c *Client, ev *ClientEvent) {
	if !er.requireAuth(c, ev) {
		return
	}

	var p MessageReactionPayload
	if !er.decode(c, ev, &p) {
		return
	}

	er.cs.notifyReaction(c, &p)
}

func (er *eventRouter) handleMessageRead(c *Client, ev *ClientEvent) {
	if !er.requireAuth(c, ev) {
		return
	}

	var p MessageReadPayload
	if !er.decode(c, ev, &p) {
		return
	}

	er.cs.notifyRead(c, &p)
}

func (er *eventRouter) handlePresenceUpdate(c *Client, ev *ClientEvent) {
	if !er.requireAuth(c, ev) {
		return
	}

	var p PresenceUpdatePayload
	if !er.decode(c, ev, &p) {
		return
	}

	er.cs.notifyPresenceChanged(c, p.Status, p.CustomMessage)
}
