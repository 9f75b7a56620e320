package server

import (
	"encoding/json"
	"time"

	"github.com/converge-im/realtime/internal/types"
)

// Inbound event types.
const (
	EvAuthenticate    = "authenticate"
	EvJoinChat        = "join_chat"
	EvLeaveChat       = "leave_chat"
	EvTypingStart     = "typing_start"
	EvTypingStop      = "typing_stop"
	EvMessageReaction = "message_reaction"
	EvMessageRead     = "message_read"
	EvPresenceUpdate  = "presence_update"
)

// Outbound event types.
const (
	EvAuthenticated        = "authenticated"
	EvAuthError            = "auth_error"
	EvUserOnline           = "user_online"
	EvUserOffline          = "user_offline"
	EvChatJoined           = "chat_joined"
	EvUserJoinedChat       = "user_joined_chat"
	EvUserLeftChat         = "user_left_chat"
	EvUserTyping           = "user_typing"
	EvUserStoppedTyping    = "user_stopped_typing"
	EvMessageReactionAdded = "message_reaction_added"
	EvMessageReadStatus    = "message_read_status"
	EvUserPresenceChanged  = "user_presence_changed"
)

// ClientEvent is the inbound envelope: a tagged JSON event from one
// connection. The payload is decoded per type by the router.
type ClientEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type AuthenticatePayload struct {
	UserId   string `json:"userId" validate:"required"`
	Nickname string `json:"nickname" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

type JoinChatPayload struct {
	ChatId string `json:"chatId" validate:"required"`
	UserId string `json:"userId" validate:"required"`
}

type LeaveChatPayload struct {
	ChatId string `json:"chatId" validate:"required"`
	UserId string `json:"userId" validate:"required"`
}

type TypingStartPayload struct {
	ChatId   string `json:"chatId" validate:"required"`
	UserId   string `json:"userId" validate:"required"`
	Nickname string `json:"nickname"`
}

type TypingStopPayload struct {
	ChatId string `json:"chatId" validate:"required"`
	UserId string `json:"userId" validate:"required"`
}

type MessageReactionPayload struct {
	MessageId string `json:"messageId" validate:"required"`
	ChatId    string `json:"chatId" validate:"required"`
	Reaction  string `json:"reaction" validate:"required"`
	UserId    string `json:"userId" validate:"required"`
}

type MessageReadPayload struct {
	MessageId string `json:"messageId" validate:"required"`
	ChatId    string `json:"chatId" validate:"required"`
	UserId    string `json:"userId" validate:"required"`
}

type PresenceUpdatePayload struct {
	Status        string `json:"status" validate:"required"`
	CustomMessage string `json:"customMessage"`
}

// ServerEvent is the outbound envelope.
type ServerEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

type AuthenticatedPayload struct {
	Success bool       `json:"success"`
	User    types.User `json:"user"`
}

type UserOnlinePayload struct {
	UserId    string `json:"userId"`
	Nickname  string `json:"nickname"`
	Timestamp string `json:"timestamp"`
}

type UserOfflinePayload struct {
	UserId    string `json:"userId"`
	Nickname  string `json:"nickname"`
	ChatId    string `json:"chatId,omitempty"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

type ChatJoinedPayload struct {
	ChatId       string `json:"chatId"`
	Participants int    `json:"participants"`
	Timestamp    string `json:"timestamp"`
}

type UserJoinedChatPayload struct {
	UserId    string `json:"userId"`
	Nickname  string `json:"nickname"`
	ChatId    string `json:"chatId"`
	Timestamp string `json:"timestamp"`
}

type UserLeftChatPayload struct {
	UserId    string `json:"userId"`
	Nickname  string `json:"nickname"`
	ChatId    string `json:"chatId"`
	Timestamp string `json:"timestamp"`
}

type UserTypingPayload struct {
	UserId    string `json:"userId"`
	Nickname  string `json:"nickname"`
	ChatId    string `json:"chatId"`
	Timestamp string `json:"timestamp"`
}

type UserStoppedTypingPayload struct {
	UserId    string `json:"userId"`
	ChatId    string `json:"chatId"`
	Timestamp string `json:"timestamp"`
}

type MessageReactionAddedPayload struct {
	MessageId string `json:"messageId"`
	ChatId    string `json:"chatId"`
	Reaction  string `json:"reaction"`
	UserId    string `json:"userId"`
	Nickname  string `json:"nickname"`
	Timestamp string `json:"timestamp"`
}

type MessageReadStatusPayload struct {
	MessageId string `json:"messageId"`
	ChatId    string `json:"chatId"`
	UserId    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

type UserPresenceChangedPayload struct {
	UserId        string `json:"userId"`
	Nickname      string `json:"nickname"`
	Status        string `json:"status"`
	CustomMessage string `json:"customMessage,omitempty"`
	Timestamp     string `json:"timestamp"`
}

// errorEventType maps an inbound type to its scoped error event.
// authenticate is the one historical exception to the <op>_error rule.
func errorEventType(evType string) string {
	if evType == EvAuthenticate {
		return EvAuthError
	}
	return evType + "_error"
}

func errorEvent(evType, msg string) *ServerEvent {
	return &ServerEvent{
		Type:    errorEventType(evType),
		Payload: ErrorPayload{Error: msg},
	}
}

func authenticatedEvent(user types.User) *ServerEvent {
	return &ServerEvent{
		Type: EvAuthenticated,
		Payload: AuthenticatedPayload{
			Success: true,
			User:    user,
		},
	}
}

func serializeEvent(ev *ServerEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// isoNow returns the current time as an ISO-8601 string, the timestamp
// format on every outbound event.
func isoNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
