package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/xenn00/musori/internal/entity"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 10
	sendBuffer     = 256
)

type Client struct {
	ID          string
	UserID      string
	Nickname    string
	Email       string
	RoomID      string
	ConnectedAt time.Time
	Conn        *websocket.Conn
	Send        chan []byte

	hub      *Hub
	ctx      context.Context
	cancel   context.CancelFunc
	lastSeen atomic.Int64
	active   atomic.Bool
	once     sync.Once

	// onEvent handles one decoded inbound frame; it runs on the read goroutine.
	onEvent func(c *Client, ev IncomingEvent)
}

func newClient(ctx context.Context, cancel context.CancelFunc, hub *Hub, conn *websocket.Conn, user *entity.User, roomID string) *Client {
	c := &Client{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Nickname:    user.Nickname,
		Email:       user.Email,
		RoomID:      roomID,
		ConnectedAt: time.Now(),
		Conn:        conn,
		Send:        make(chan []byte, sendBuffer),
		hub:         hub,
		ctx:         ctx,
		cancel:      cancel,
	}
	c.lastSeen.Store(time.Now().UnixNano())
	c.active.Store(true)
	return c
}

// Start runs the pumps. The read pump owns unregistration.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) IsClientActive() bool {
	return c.active.Load()
}

func (c *Client) GetLastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Client) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
	c.hub.touch(c)
}

// Close stops both pumps. Send is never closed; writers select on the context instead.
func (c *Client) Close() {
	c.once.Do(func() {
		c.active.Store(false)
		c.cancel()
		_ = c.Conn.Close()
	})
}

// SendEvent queues ev without blocking. A client whose buffer is full is closed.
func (c *Client) SendEvent(ev OutgoingEvent) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("clientID", c.ID).Str("event", ev.Event).Msg("ws: failed to marshal event")
		return false
	}
	return c.sendRaw(data)
}

func (c *Client) sendRaw(data []byte) bool {
	if !c.IsClientActive() {
		return false
	}
	select {
	case c.Send <- data:
		return true
	case <-c.ctx.Done():
		return false
	default:
		log.Warn().Str("clientID", c.ID).Str("userID", c.UserID).Str("roomID", c.RoomID).Msg("ws: slow consumer, dropping client")
		go c.Close()
		return false
	}
}

// writePump: take data from c.Send and send to socket + ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.Close()
		c.hub.Unregister(c)
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touch()
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug().Err(err).Str("clientID", c.ID).Msg("ws: read error")
			}
			return
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))

		var ev IncomingEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Event == "" {
			c.SendEvent(NewErrorEvent(c.RoomID, http.StatusBadRequest, "malformed event", "event"))
			continue
		}
		if c.onEvent != nil {
			c.onEvent(c, ev)
		}
	}
}
