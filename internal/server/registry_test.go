package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/converge-im/realtime/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestRegistry(t *testing.T) *roomRegistry {
	t.Helper()
	return newRoomRegistry(testutil.TestLogger(t), newMockStats())
}

func Test_roomRegistry_join(t *testing.T) {
	cs := newTestChatServer(t, nil)
	rr := newTestRegistry(t)

	c1 := newTestClient(t, cs)
	c2 := newTestClient(t, cs)

	assert.Equal(t, 1, rr.join("room1", c1), "expected one member after first join")
	assert.Equal(t, 2, rr.join("room1", c2), "expected two members after second join")

	// joining again is a no-op
	assert.Equal(t, 2, rr.join("room1", c2), "expected duplicate join to not add a member")

	assert.True(t, rr.contains("room1", c1.id))
	assert.True(t, rr.contains("room1", c2.id))
}

func Test_roomRegistry_leave(t *testing.T) {
	cs := newTestChatServer(t, nil)
	rr := newTestRegistry(t)

	c1 := newTestClient(t, cs)
	c2 := newTestClient(t, cs)

	rr.join("room1", c1)
	rr.join("room1", c2)

	rr.leave("room1", c1)
	assert.False(t, rr.contains("room1", c1.id), "expected c1 to be removed")
	assert.Equal(t, 1, rr.count("room1"))

	// leaving when not a member is a no-op
	rr.leave("room1", c1)
	assert.Equal(t, 1, rr.count("room1"))

	// last leave prunes the room entry
	rr.leave("room1", c2)
	rr.mu.RLock()
	_, ok := rr.rooms["room1"]
	rr.mu.RUnlock()
	assert.False(t, ok, "expected empty room to be pruned")

	// join after prune recreates the room
	assert.Equal(t, 1, rr.join("room1", c1), "expected join after prune to recreate the room")
}

func Test_roomRegistry_membersOf(t *testing.T) {
	cs := newTestChatServer(t, nil)
	rr := newTestRegistry(t)

	assert.Empty(t, rr.membersOf("room1"), "expected no members for unknown room")

	c1 := newTestClient(t, cs)
	c2 := newTestClient(t, cs)
	rr.join("room1", c1)
	rr.join("room1", c2)

	members := rr.membersOf("room1")
	assert.Len(t, members, 2)
	assert.ElementsMatch(t, []*Client{c1, c2}, members)
}

func Test_roomRegistry_broadcast(t *testing.T) {
	t.Run("delivers to all members except skip", func(t *testing.T) {
		cs := newTestChatServer(t, nil)
		rr := newTestRegistry(t)

		c1 := newTestClient(t, cs)
		c2 := newTestClient(t, cs)
		c3 := newTestClient(t, cs)
		for _, c := range []*Client{c1, c2, c3} {
			rr.join("room1", c)
		}

		rr.broadcast("room1", &ServerEvent{Type: EvUserTyping}, c1)

		assert.Empty(t, c1.send, "expected skipped client to receive nothing")
		assert.Len(t, c2.send, 1)
		assert.Len(t, c3.send, 1)
	})

	t.Run("full recipient buffer drops only that recipient", func(t *testing.T) {
		cs := newTestChatServer(t, nil)
		rr := newTestRegistry(t)

		slow := newTestClient(t, cs)
		slow.send = make(chan *ServerEvent, 1)
		slow.send <- &ServerEvent{} // fill the buffer

		fast := newTestClient(t, cs)

		rr.join("room1", slow)
		rr.join("room1", fast)

		rr.broadcast("room1", &ServerEvent{Type: EvUserTyping}, nil)

		assert.Len(t, slow.send, 1, "expected slow client's buffer to stay at capacity")
		assert.Len(t, fast.send, 1, "expected fast client to receive the event")
	})
}

func Test_roomRegistry_concurrent(t *testing.T) {
	cs := newTestChatServer(t, nil)
	rr := newTestRegistry(t)

	const n = 32
	clients := make([]*Client, n)
	for i := range clients {
		clients[i] = newTestClient(t, cs)
	}

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		go func(i int, c *Client) {
			defer wg.Done()
			room := fmt.Sprintf("room%d", i%4)
			rr.join(room, c)
			rr.broadcast(room, &ServerEvent{Type: EvUserTyping}, c)
			if i%2 == 0 {
				rr.leave(room, c)
			}
		}(i, c)
	}
	wg.Wait()

	total := 0
	for i := 0; i < 4; i++ {
		total += rr.count(fmt.Sprintf("room%d", i))
	}
	assert.Equal(t, n/2, total, "expected only the odd-numbered clients to remain")
}
