package bridge

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// Server is the daemon side of the bridge. Each accepted foreground gets its
// own write pump; Send broadcasts to all of them.
type Server struct {
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	peers   map[*peer]struct{}
	closed  bool
	inbound chan Message
}

type peer struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.send)
	})
}

func NewServer(logger *zap.SugaredLogger, buffer int) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameHostOrigin,
		},
		logger:  logger,
		peers:   make(map[*peer]struct{}),
		inbound: make(chan Message, buffer),
	}
}

// sameHostOrigin accepts non-browser clients (no Origin header) and browsers
// on the bridge's own host.
func sameHostOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	return origin == "http://"+r.Host || origin == "http://"+host ||
		origin == "http://localhost" || origin == "http://127.0.0.1"
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "bridge closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("bridge upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	p := &peer{conn: conn, send: make(chan []byte, sendBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.peers[p] = struct{}{}
	count := len(s.peers)
	s.mu.Unlock()
	s.logger.Infow("bridge peer connected", "remote", r.RemoteAddr, "peers", count)

	go s.writePump(p)
	s.readPump(p)
}

func (s *Server) readPump(p *peer) {
	defer func() {
		s.drop(p)
		_ = p.conn.Close()
	}()
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnw("bridge read failed", "error", err)
			}
			return
		}
		msg, err := Decode(raw)
		if err != nil {
			s.logger.Warnw("bridge dropped malformed message", "error", err)
			continue
		}
		select {
		case s.inbound <- msg:
		default:
			s.logger.Warnw("bridge inbound buffer full", "type", msg.Type, "reminder_id", msg.ReminderID)
		}
	}
}

func (s *Server) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()
	for {
		select {
		case raw, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) drop(p *peer) {
	s.mu.Lock()
	_, ok := s.peers[p]
	delete(s.peers, p)
	count := len(s.peers)
	s.mu.Unlock()
	if ok {
		p.close()
		s.logger.Infow("bridge peer disconnected", "peers", count)
	}
}

// Send broadcasts m to every connected foreground. A peer whose buffer is
// full is skipped for this message.
func (s *Server) Send(ctx context.Context, m Message) error {
	raw, err := Encode(m)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if len(s.peers) == 0 {
		return ErrNoPeers
	}
	delivered := 0
	for p := range s.peers {
		select {
		case p.send <- raw:
			delivered++
		default:
			s.logger.Warnw("bridge peer buffer full", "type", m.Type)
		}
	}
	if delivered == 0 {
		return ErrDropped
	}
	return nil
}

func (s *Server) Messages() <-chan Message {
	return s.inbound
}

func (s *Server) Peers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Close disconnects every peer. The inbound channel is left open so a
// pending reader is not confused by a zero Message.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := make([]*peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = make(map[*peer]struct{})
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	return nil
}

// Client is the foreground side of the bridge.
type Client struct {
	conn   *websocket.Conn
	logger *zap.SugaredLogger

	writeMu sync.Mutex
	inbound chan Message
	done    chan struct{}
	once    sync.Once
}

// Dial connects to the daemon at url (ws://host:port/path).
func Dial(ctx context.Context, url string, logger *zap.SugaredLogger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		conn:    conn,
		logger:  logger,
		inbound: make(chan Message, sendBuffer),
		done:    make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	go c.readLoop()
	return c, nil
}

// URL builds the websocket address the daemon listens on.
func URL(addr, path string) string {
	if path == "" {
		path = "/"
	} else if path[0] != '/' {
		path = "/" + path
	}
	return "ws://" + addr + path
}

func (c *Client) readLoop() {
	defer func() {
		close(c.inbound)
		c.shutdown()
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warnw("bridge client read failed", "error", err)
			}
			return
		}
		msg, err := Decode(raw)
		if err != nil {
			c.logger.Warnw("bridge client dropped malformed message", "error", err)
			continue
		}
		select {
		case c.inbound <- msg:
		default:
			c.logger.Warnw("bridge client inbound buffer full", "type", msg.Type)
		}
	}
}

func (c *Client) Send(ctx context.Context, m Message) error {
	raw, err := Encode(m)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return ErrClosed
		}
		return err
	}
	return nil
}

func (c *Client) Messages() <-chan Message {
	return c.inbound
}

// Done is closed once the connection to the daemon is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}
