package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"chathub/internal/config"
	"chathub/internal/logx"
)

const (
	defaultSendBuffer     = 256
	defaultPingInterval   = 54 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
)

// Client is one websocket connection handle. Outbound frames are queued on
// send and written by WritePump; only the Hub closes send.
type Client struct {
	ID      string
	Info    ConnInfo
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	cfg     config.WebSocketConfig
}

func NewClient(info ConnInfo, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		ID:      info.ConnID,
		Info:    info,
		conn:    conn,
		send:    make(chan []byte, cfg.SendBuffer),
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
	}
}

// Allow reports whether the connection may send another message now.
func (c *Client) Allow() bool {
	return c.limiter.Allow()
}

func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// ReadPump reads frames until the connection fails or closes.
func (c *Client) ReadPump(handler func([]byte)) {
	defer c.conn.Close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l := logx.L()
				l.Warn().Err(err).Str("conn_id", c.ID).Str("user_id", c.Info.UserID).Msg("websocket read error")
			}
			return
		}
		handler(message)
	}
}

// WritePump drains send and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
