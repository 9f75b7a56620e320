package server

import (
	"log"
	"sync"

	"github.com/converge-im/realtime/internal/stats"
	"github.com/samber/lo"
)

// globalRoom is the reserved pseudo-room holding every registered
// connection. Global online/offline fan-out goes through it so there is
// no special-cased broadcast path.
const globalRoom = "\x00all"

// roomRegistry maps room ids to their current member connections. It is
// the only structure shared across connection goroutines; every method
// is safe for concurrent use.
type roomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client
	log   *log.Logger
	stats stats.StatsProvider
}

func newRoomRegistry(logger *log.Logger, sp stats.StatsProvider) *roomRegistry {
	return &roomRegistry{
		rooms: make(map[string]map[string]*Client),
		log:   logger,
		stats: sp,
	}
}

// join adds c to the room, creating the room entry lazily. Joining a
// room the connection is already in is a no-op. Returns the member
// count after the join.
func (rr *roomRegistry) join(roomId string, c *Client) int {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	members, ok := rr.rooms[roomId]
	if !ok {
		members = make(map[string]*Client)
		rr.rooms[roomId] = members
		if roomId != globalRoom {
			rr.stats.Incr(stats.ActiveRooms)
		}
	}

	members[c.id] = c
	return len(members)
}

// leave removes c from the room and prunes the entry once empty.
// Leaving a room the connection is not in is a no-op.
func (rr *roomRegistry) leave(roomId string, c *Client) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	members, ok := rr.rooms[roomId]
	if !ok {
		return
	}

	if _, ok := members[c.id]; !ok {
		return
	}

	delete(members, c.id)
	if len(members) == 0 {
		delete(rr.rooms, roomId)
		if roomId != globalRoom {
			rr.stats.Decr(stats.ActiveRooms)
		}
	}
}

func (rr *roomRegistry) membersOf(roomId string) []*Client {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	return lo.Values(rr.rooms[roomId])
}

func (rr *roomRegistry) contains(roomId, connId string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	_, ok := rr.rooms[roomId][connId]
	return ok
}

func (rr *roomRegistry) count(roomId string) int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	return len(rr.rooms[roomId])
}

// broadcast queues ev for every member of the room except skip. The
// member set is snapshotted under the read lock and delivery happens
// outside it; queueing is non-blocking per recipient, so one slow peer
// only loses its own copy.
func (rr *roomRegistry) broadcast(roomId string, ev *ServerEvent, skip *Client) {
	for _, member := range rr.membersOf(roomId) {
		if member == skip {
			continue
		}

		if !member.queueEvent(ev) {
			rr.log.Printf("dropped %q event for connection %s in room %q", ev.Type, member.id, roomId)
		}
	}
}
