package server

// Presence broadcaster: derives the outbound notification events and
// publishes them through the room registry.

// notifyOnline announces a freshly authenticated user to every other
// connection via the global pseudo-room.
func (cs *ChatServer) notifyOnline(c *Client) {
	cs.registry.broadcast(globalRoom, &ServerEvent{
		Type: EvUserOnline,
		Payload: UserOnlinePayload{
			UserId:    c.identity.Id,
			Nickname:  c.identity.Nickname,
			Timestamp: isoNow(),
		},
	}, c)
}

// notifyOffline announces a departed user. With a roomId it targets the
// remaining members of that room; with an empty roomId it is the single
// global broadcast emitted on deregistration. Best-effort either way;
// connections with nothing to announce (never authenticated) are
// skipped.
func (cs *ChatServer) notifyOffline(c *Client, roomId, reason string) {
	if c.identity == nil {
		return
	}

	payload := UserOfflinePayload{
		UserId:    c.identity.Id,
		Nickname:  c.identity.Nickname,
		ChatId:    roomId,
		Timestamp: isoNow(),
		Reason:    reason,
	}

	target := roomId
	if target == "" {
		target = globalRoom
	}

	cs.registry.broadcast(target, &ServerEvent{Type: EvUserOffline, Payload: payload}, c)
}

func (cs *ChatServer) notifyJoinedChat(c *Client, chatId string) {
	cs.registry.broadcast(chatId, &ServerEvent{
		Type: EvUserJoinedChat,
		Payload: UserJoinedChatPayload{
			UserId:    c.identity.Id,
			Nickname:  c.identity.Nickname,
			ChatId:    chatId,
			Timestamp: isoNow(),
		},
	}, c)
}

func (cs *ChatServer) notifyLeftChat(c *Client, chatId string) {
	cs.registry.broadcast(chatId, &ServerEvent{
		Type: EvUserLeftChat,
		Payload: UserLeftChatPayload{
			UserId:    c.identity.Id,
			Nickname:  c.identity.Nickname,
			ChatId:    chatId,
			Timestamp: isoNow(),
		},
	}, c)
}

func (cs *ChatServer) notifyTyping(c *Client, chatId, nickname string) {
	cs.registry.broadcast(chatId, &ServerEvent{
		Type: EvUserTyping,
		Payload: UserTypingPayload{
			UserId:    c.identity.Id,
			Nickname:  nickname,
			ChatId:    chatId,
			Timestamp: isoNow(),
		},
	}, c)
}

func (cs *ChatServer) notifyStoppedTyping(userId, chatId string, skip *Client) {
	cs.registry.broadcast(chatId, &ServerEvent{
		Type: EvUserStoppedTyping,
		Payload: UserStoppedTypingPayload{
			UserId:    userId,
			ChatId:    chatId,
			Timestamp: isoNow(),
		},
	}, skip)
}

func (cs *ChatServer) notifyReaction(c *Client, p *MessageReactionPayload) {
	cs.registry.broadcast(p.ChatId, &ServerEvent{
		Type: EvMessageReactionAdded,
		Payload: MessageReactionAddedPayload{
			MessageId: p.MessageId,
			ChatId:    p.ChatId,
			Reaction:  p.Reaction,
			UserId:    c.identity.Id,
			Nickname:  c.identity.Nickname,
			Timestamp: isoNow(),
		},
	}, c)
}

// notifyRead goes to the whole room, sender included, so every client
// converges on the same read state.
func (cs *ChatServer) notifyRead(c *Client, p *MessageReadPayload) {
	cs.registry.broadcast(p.ChatId, &ServerEvent{
		Type: EvMessageReadStatus,
		Payload: MessageReadStatusPayload{
			MessageId: p.MessageId,
			ChatId:    p.ChatId,
			UserId:    c.identity.Id,
			Timestamp: isoNow(),
		},
	}, nil)
}

// notifyPresenceChanged is room-scoped rather than global: the status
// change goes only to rooms the connection has joined.
func (cs *ChatServer) notifyPresenceChanged(c *Client, status, customMessage string) {
	for roomId := range c.rooms {
		cs.registry.broadcast(roomId, &ServerEvent{
			Type: EvUserPresenceChanged,
			Payload: UserPresenceChangedPayload{
				UserId:        c.identity.Id,
				Nickname:      c.identity.Nickname,
				Status:        status,
				CustomMessage: customMessage,
				Timestamp:     isoNow(),
			},
		}, c)
	}
}
