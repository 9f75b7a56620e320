package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/converge-im/realtime/internal/auth"
	"github.com/converge-im/realtime/internal/stats"
)

// typingExpiry is the debounce window after which a silent typist is
// reported as stopped.
const typingExpiry = 3 * time.Second

type ChatServer struct {
	log         *log.Logger
	stats       stats.StatsProvider
	verifier    auth.TokenVerifier
	registry    *roomRegistry
	router      *eventRouter
	clients     map[string]*Client
	clientsLock sync.Mutex

	// typingExpiry defaults to the package constant; tests shorten it.
	typingExpiry time.Duration
}

func NewChatServer(logger *log.Logger, verifier auth.TokenVerifier, sp stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:          logger,
		stats:        sp,
		verifier:     verifier,
		clients:      make(map[string]*Client),
		typingExpiry: typingExpiry,
	}
	cs.registry = newRoomRegistry(logger, sp)
	cs.router = newEventRouter(cs)

	for _, name := range []string{
		stats.ActiveConnections,
		stats.ActiveRooms,
		stats.EventsProcessed,
		stats.EventsDropped,
	} {
		sp.RegisterMetric(name)
	}

	return cs, nil
}

// RegisterClient adds a new connection and joins it to the global
// pseudo-room so it receives online/offline broadcasts immediately,
// before it has authenticated.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.clientsLock.Lock()
	cs.clients[c.id] = c
	cs.clientsLock.Unlock()

	cs.registry.join(globalRoom, c)
	cs.stats.Incr(stats.ActiveConnections)
	cs.log.Printf("registered connection %s", c.id)
}

// DeregisterClient removes the connection from the global pseudo-room
// and, if it had authenticated, announces the global user_offline.
func (cs *ChatServer) DeregisterClient(c *Client, reason string) {
	cs.clientsLock.Lock()
	_, ok := cs.clients[c.id]
	delete(cs.clients, c.id)
	cs.clientsLock.Unlock()

	if !ok {
		return
	}

	cs.registry.leave(globalRoom, c)
	cs.notifyOffline(c, "", reason)
	cs.stats.Decr(stats.ActiveConnections)
	cs.log.Printf("deregistered connection %s", c.id)
}

func (cs *ChatServer) numClients() int {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	return len(cs.clients)
}

// Shutdown stops every client and waits for their read pumps to finish
// cleanup, or for ctx to expire.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down chat server")

	cs.clientsLock.Lock()
	for _, c := range cs.clients {
		c.stopClient()
		if c.conn != nil {
			c.conn.Close()
		}
	}
	cs.clientsLock.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for cs.numClients() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
