package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kode4food/foreman/internal/events"
	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

// Client streams the events matching one pattern to a WebSocket
// connection
type Client struct {
	hub     events.Subscriber
	conn    *websocket.Conn
	events  chan *api.Event
	closed  chan struct{}
	subID   events.SubscriptionID
	pattern string
	once    sync.Once
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	wsBufferSize   = 1024
	eventBuffer    = 64
	allEvents      = "*"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

func (s *Server) handleEvents(c *gin.Context) {
	pattern := c.DefaultQuery("pattern", allEvents)
	client := &Client{
		hub:     s.core.Events,
		events:  make(chan *api.Event, eventBuffer),
		closed:  make(chan struct{}),
		pattern: pattern,
	}

	id, err := s.core.Events.Subscribe(pattern, client.enqueue)
	if err != nil {
		fail(c, err)
		return
	}
	client.subID = id

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.Error(err))
		_ = s.core.Events.Unsubscribe(id)
		return
	}
	client.conn = conn

	s.registerWebSocket(client)
	go func() {
		defer s.unregisterWebSocket(client)
		client.run()
	}()
}

// Close ends the stream and its connection
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

func (c *Client) enqueue(ev *api.Event) {
	select {
	case c.events <- ev:
	case <-c.closed:
	}
}

func (c *Client) run() {
	defer func() {
		c.Close()
		_ = c.hub.Unsubscribe(c.subID)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	gone := make(chan struct{})
	go c.readMessages(gone)

	slog.Debug("Event stream opened",
		slog.String("pattern", c.pattern))

	for {
		select {
		case ev := <-c.events:
			if !c.send(ev) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}

		case <-gone:
			return

		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			)
			return
		}
	}
}

// readMessages discards anything the client sends, which keeps pong and
// close frames flowing, and reports when the connection goes away
func (c *Client) readMessages(gone chan struct{}) {
	defer close(gone)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) send(ev *api.Event) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(ev); err != nil {
		slog.Error("WebSocket write failed",
			log.EventType(ev.Type),
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}
