package realtime

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"parrot/internal/channel"
	"parrot/internal/protocol"
	"parrot/internal/session"

	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow localhost origins for dev.
	},
}

// Server exposes a channel through three surfaces: an HTTP producer
// endpoint, an HTTP reset endpoint, and a WebSocket consumer that opens,
// reads and closes the exclusive session.
type Server struct {
	ch    *channel.Channel
	sess  *session.Session
	debug bool

	clients   map[*client]bool
	clientsMu sync.RWMutex

	// owner is the client currently holding the session, if any.
	owner   *client
	ownerMu sync.Mutex
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// New creates a new realtime server.
func New(ch *channel.Channel, sess *session.Session, debug bool) *Server {
	return &Server{
		ch:      ch,
		sess:    sess,
		debug:   debug,
		clients: make(map[*client]bool),
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Consumer surface.
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Producer and administrative surfaces.
	mux.HandleFunc("POST /fifo", s.handleFifo)
	mux.HandleFunc("POST /reset", s.handleReset)
	mux.HandleFunc("GET /status", s.handleStatus)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an HTTP connection to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()

	go c.writePump()
	go c.readPump()
}

// readPump reads messages from the WebSocket connection.
func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("websocket read error: %v", err)
			}
			return
		}

		c.server.handleMessage(c, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// removeClient cleans up a disconnected client. A client that goes away
// while holding the session releases it, like a file closed on exit.
func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	s.clientsMu.Unlock()

	s.ownerMu.Lock()
	if s.owner == c {
		s.owner = nil
		s.sess.Release()
		s.debugf("client disconnected, session released")
	}
	s.ownerMu.Unlock()

	close(c.send)
}

// handleMessage processes a validated client message.
func (s *Server) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeDeviceOpen:
		s.handleWSOpen(c, msg)
	case protocol.TypeDeviceRead:
		s.handleWSRead(c, msg)
	case protocol.TypeDeviceClose:
		s.handleWSClose(c)
	case protocol.TypeDeviceWrite:
		s.handleWSWrite(c, msg)
	}
}

func (s *Server) handleWSOpen(c *client, msg *protocol.Message) {
	var payload protocol.DeviceOpenPayload
	if err := protocol.DecodePayload(msg, &payload); err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	s.ownerMu.Lock()
	err := s.sess.Open(session.Mode(payload.Mode))
	if err == nil {
		s.owner = c
	}
	s.ownerMu.Unlock()

	switch {
	case errors.Is(err, session.ErrPermissionDenied):
		s.sendError(c, protocol.ErrPermissionDenied, err.Error())
		return
	case errors.Is(err, session.ErrAlreadyHeld):
		s.sendError(c, protocol.ErrBusy, err.Error())
		return
	case err != nil:
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	info := s.sess.Info()
	s.debugf("session %s opened", info.ID)
	s.sendMessage(c, protocol.TypeDeviceOpened, protocol.DeviceOpenedPayload{
		SessionID: info.ID,
		OneShot:   info.OneShot,
	})
}

func (s *Server) handleWSRead(c *client, msg *protocol.Message) {
	var payload protocol.DeviceReadPayload
	if err := protocol.DecodePayload(msg, &payload); err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	maxLen := payload.MaxLen
	if maxLen == 0 {
		maxLen = s.ch.Stats().Capacity
	}

	s.ownerMu.Lock()
	if s.owner != c {
		s.ownerMu.Unlock()
		s.sendError(c, protocol.ErrNotOpen, "device is not open on this connection")
		return
	}
	data, err := s.sess.ReadOne(maxLen)
	s.ownerMu.Unlock()

	if err != nil && !channel.IsWarning(err) {
		s.sendError(c, protocol.ErrNotOpen, err.Error())
		return
	}

	s.sendMessage(c, protocol.TypeDeviceData, protocol.DeviceDataPayload{
		Data:   data,
		Length: len(data),
		Short:  channel.IsWarning(err),
	})
}

func (s *Server) handleWSClose(c *client) {
	s.ownerMu.Lock()
	if s.owner != c {
		s.ownerMu.Unlock()
		s.sendError(c, protocol.ErrNotOpen, "device is not open on this connection")
		return
	}
	id := s.sess.Info().ID
	s.owner = nil
	s.sess.Release()
	s.ownerMu.Unlock()

	s.debugf("session %s closed", id)
	s.sendMessage(c, protocol.TypeDeviceClosed, protocol.DeviceClosedPayload{SessionID: id})
}

// handleWSWrite refuses the write whether or not this connection holds the
// session.
func (s *Server) handleWSWrite(c *client, msg *protocol.Message) {
	var payload protocol.DeviceWritePayload
	if err := protocol.DecodePayload(msg, &payload); err != nil {
		s.sendError(c, protocol.ErrInvalidMessage, err.Error())
		return
	}

	if _, err := s.sess.Write(payload.Data); err != nil {
		s.sendError(c, protocol.ErrPermissionDenied, err.Error())
	}
}

// Shutdown closes every consumer connection. Their read pumps release the
// session on the way out.
func (s *Server) Shutdown() {
	s.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c.conn)
	}
	s.clientsMu.RUnlock()

	for _, conn := range conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeDeadline))
		conn.Close()
	}
}

func (s *Server) sendMessage(c *client, msgType string, payload interface{}) {
	msg, err := protocol.NewMessage(msgType, payload)
	if err != nil {
		log.Printf("realtime: build %s: %v", msgType, err)
		return
	}
	s.send(c, msg)
}

func (s *Server) sendError(c *client, code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		log.Printf("realtime: build error %s: %v", code, err)
		return
	}
	s.send(c, msg)
}

func (s *Server) send(c *client, msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Printf("realtime: encode %s: %v", msg.Type, err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Client buffer full, drop the reply.
	}
}

func (s *Server) debugf(format string, args ...interface{}) {
	if s.debug {
		log.Printf("realtime: "+format, args...)
	}
}
