package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/converge-im/realtime/internal/stats"
	"github.com/converge-im/realtime/internal/types"
	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client is the session for one live connection: transport pumps plus
// the per-connection state machine (identity, joined rooms, typing
// timers). rooms and identity are mutated only by this connection's own
// read goroutine; timers carries its own lock because expiry callbacks
// fire on timer goroutines.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	stats      stats.StatsProvider

	// identity is nil until a successful authenticate event.
	identity *types.User
	rooms    map[string]struct{}
	timers   *timerRegistry

	send     chan *ServerEvent
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(conn *websocket.Conn, cs *ChatServer, l *log.Logger, sp stats.StatsProvider) *Client {
	return &Client{
		id:         shortid.MustGenerate(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		stats:      sp,
		rooms:      make(map[string]struct{}),
		timers:     newTimerRegistry(),
		send:       make(chan *ServerEvent, sendBufferSize),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("write exiting for connection %s", c.id)
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeEvent(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.teardown("transport closed")
		c.log.Printf("read exiting for connection %s", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			continue
		}

		c.chatServer.router.dispatch(c, &ev)
	}
}

// queueEvent hands an event to the write pump without blocking. A full
// buffer drops the event for this recipient only.
func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.stats.Incr(stats.EventsDropped)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// teardown runs the disconnect transition: cancel every owned timer,
// leave every room with a scoped user_offline, then deregister, which
// emits the one global user_offline. Terminal; the session processes
// no events afterwards.
func (c *Client) teardown(reason string) {
	c.timers.cancelAll()

	for roomId := range c.rooms {
		c.chatServer.registry.leave(roomId, c)
		c.chatServer.notifyOffline(c, roomId, "")
		delete(c.rooms, roomId)
	}

	c.chatServer.DeregisterClient(c, reason)
	c.stopClient()
}

func (c *Client) addRoom(roomId string) {
	c.rooms[roomId] = struct{}{}
}

func (c *Client) delRoom(roomId string) {
	delete(c.rooms, roomId)
}

func (c *Client) inRoom(roomId string) bool {
	_, ok := c.rooms[roomId]
	return ok
}
