package ws

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ore-autominer/internal/events"
)

const (
	defaultWriteWait  = 10 * time.Second
	defaultPongWait   = 60 * time.Second
	defaultPingPeriod = 50 * time.Second
	sendQueue         = 64
)

type Config struct {
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	wallet string

	mu       sync.Mutex
	lastSent int64
	closed   bool
}

// Server streams one wallet's events per connection with Last-Event-ID replay.
type Server struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
	cfg      Config

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func NewServer(hub *events.Hub, cfg Config) *Server {
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	return &Server{
		hub:      hub,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		cfg:      cfg,
		clients:  map[*Client]struct{}{},
	}
}

// Clients is the number of open connections.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		http.Error(w, "wallet is required", http.StatusBadRequest)
		return
	}
	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("last_event_id")
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Client{conn: conn, send: make(chan []byte, sendQueue), wallet: wallet}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	buf := s.hub.Buffer(wallet)
	sub := buf.Subscribe()
	replay := buf.ReplayAfter(lastEventID)
	s.sendJSON(c, Hello{Type: msgHello, ProtocolVersion: events.Version, Wallet: wallet, Replayed: len(replay)})
	for _, ev := range replay {
		s.sendEvent(c, ev)
	}

	go s.forward(c, sub)
	go s.writeLoop(c)
	s.readLoop(c, buf)
	buf.Unsubscribe(sub)
}

func (s *Server) forward(c *Client, sub chan events.Event) {
	for ev := range sub {
		if !s.sendEvent(c, ev) {
			return
		}
	}
}

func (s *Server) readLoop(c *Client, buf *events.EventBuffer) {
	defer s.unregister(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in ClientMessage
		if err := json.Unmarshal(msg, &in); err != nil {
			s.sendJSON(c, ErrorMessage{Type: msgError, Error: "invalid_json"})
			continue
		}
		switch in.Type {
		case msgResume:
			for _, ev := range buf.ReplayAfter(in.LastEventID) {
				s.sendEvent(c, ev)
			}
		case msgPing:
			s.sendJSON(c, Pong{Type: msgPong, ServerTS: time.Now().UnixMilli()})
		}
	}
}

func (s *Server) writeLoop(c *Client) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent skips events the client already has and drops the connection
// when its queue is full.
func (s *Server) sendEvent(c *Client, ev events.Event) bool {
	id, _ := strconv.ParseInt(ev.EventID, 10, 64)
	c.mu.Lock()
	if id > 0 && id <= c.lastSent {
		c.mu.Unlock()
		return true
	}
	if id > 0 {
		c.lastSent = id
	}
	c.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("marshal ws event")
		return true
	}
	return s.enqueue(c, data)
}

func (s *Server) sendJSON(c *Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.enqueue(c, data)
}

func (s *Server) enqueue(c *Client, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Warn().Str("wallet", c.wallet).Msg("ws client too slow, disconnecting")
		c.closed = true
		close(c.send)
		return false
	}
}

func (s *Server) unregister(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
}
