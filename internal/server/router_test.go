package server

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/converge-im/realtime/internal/auth"
	"github.com/converge-im/realtime/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_dispatch_unknownType(t *testing.T) {
	cs := newTestChatServer(t, nil)
	c := newTestClient(t, cs)

	cs.router.dispatch(c, &ClientEvent{Type: "bogus_event", Payload: json.RawMessage(`{}`)})

	assert.Empty(t, c.send, "expected unknown event types to be ignored without a response")
}

func Test_dispatch_invalidPayload(t *testing.T) {
	cs := newTestChatServer(t, nil)
	c := newTestClient(t, cs)
	authenticateClient(t, cs, c, "u1", "Alice")

	cs.router.dispatch(c, &ClientEvent{Type: EvJoinChat, Payload: json.RawMessage(`not json`)})

	ev := nextEvent(t, c)
	assert.Equal(t, "join_chat_error", ev.Type)
	assert.Equal(t, "invalid payload", ev.Payload.(ErrorPayload).Error)
}

func Test_dispatch_missingFields(t *testing.T) {
	cs := newTestChatServer(t, nil)
	c := newTestClient(t, cs)
	authenticateClient(t, cs, c, "u1", "Alice")

	dispatch(t, cs, c, EvJoinChat, JoinChatPayload{UserId: "u1"}) // no chatId

	ev := nextEvent(t, c)
	assert.Equal(t, "join_chat_error", ev.Type)
	assert.Equal(t, "missing required fields", ev.Payload.(ErrorPayload).Error)
	assert.Empty(t, c.rooms, "expected no room membership change on validation failure")
}

func Test_dispatch_requiresAuth(t *testing.T) {
	cs := newTestChatServer(t, nil)

	tcases := []struct {
		evType  string
		payload any
	}{
		{EvJoinChat, JoinChatPayload{ChatId: "c1", UserId: "u1"}},
		{EvLeaveChat, LeaveChatPayload{ChatId: "c1", UserId: "u1"}},
		{EvTypingStart, TypingStartPayload{ChatId: "c1", UserId: "u1"}},
		{EvTypingStop, TypingStopPayload{ChatId: "c1", UserId: "u1"}},
		{EvMessageReaction, MessageReactionPayload{MessageId: "m1", ChatId: "c1", Reaction: "❤️", UserId: "u1"}},
		{EvMessageRead, MessageReadPayload{MessageId: "m1", ChatId: "c1", UserId: "u1"}},
		{EvPresenceUpdate, PresenceUpdatePayload{Status: "away"}},
	}

	for _, tc := range tcases {
		t.Run(tc.evType, func(t *testing.T) {
			c := newTestClient(t, cs)

			dispatch(t, cs, c, tc.evType, tc.payload)

			ev := nextEvent(t, c)
			assert.Equal(t, errorEventType(tc.evType), ev.Type)
			assert.Equal(t, "not authenticated", ev.Payload.(ErrorPayload).Error)
		})
	}
}

func Test_handleAuthenticate_verifyFailure(t *testing.T) {
	mv := &auth.MockVerifier{}
	mv.On("Verify", "bad-token").Return(types.User{}, errors.New("expired"))

	cs := newTestChatServer(t, mv)
	c := newTestClient(t, cs)

	dispatch(t, cs, c, EvAuthenticate, AuthenticatePayload{
		UserId:   "u1",
		Nickname: "Alice",
		Token:    "bad-token",
	})

	ev := nextEvent(t, c)
	assert.Equal(t, EvAuthError, ev.Type)
	assert.Equal(t, "authentication failed", ev.Payload.(ErrorPayload).Error)
	assert.Nil(t, c.identity, "expected session to remain unauthenticated")

	mv.AssertExpectations(t)
}

func Test_handleAuthenticate_subjectMismatch(t *testing.T) {
	cs := newTestChatServer(t, nil)
	c := newTestClient(t, cs)

	// token verifies as u2, payload claims u1
	dispatch(t, cs, c, EvAuthenticate, AuthenticatePayload{
		UserId:   "u1",
		Nickname: "Alice",
		Token:    "tok-u2",
	})

	ev := nextEvent(t, c)
	assert.Equal(t, EvAuthError, ev.Type)
	assert.Nil(t, c.identity)
}

func Test_handleAuthenticate_missingFields(t *testing.T) {
	cs := newTestChatServer(t, nil)
	c := newTestClient(t, cs)

	dispatch(t, cs, c, EvAuthenticate, AuthenticatePayload{UserId: "u1"})

	ev := nextEvent(t, c)
	assert.Equal(t, EvAuthError, ev.Type, "expected authenticate validation failures to use auth_error")
}

func Test_handleAuthenticate_retryAfterFailure(t *testing.T) {
	cs := newTestChatServer(t, nil)
	c := newTestClient(t, cs)

	dispatch(t, cs, c, EvAuthenticate, AuthenticatePayload{
		UserId:   "u1",
		Nickname: "Alice",
		Token:    "garbage",
	})
	require.Equal(t, EvAuthError, nextEvent(t, c).Type)

	// the connection stays open for retry
	authenticateClient(t, cs, c, "u1", "Alice")
	assert.Equal(t, "u1", c.identity.Id)
}

func Test_errorEventType(t *testing.T) {
	assert.Equal(t, "auth_error", errorEventType(EvAuthenticate))
	assert.Equal(t, "join_chat_error", errorEventType(EvJoinChat))
	assert.Equal(t, "typing_start_error", errorEventType(EvTypingStart))
}
