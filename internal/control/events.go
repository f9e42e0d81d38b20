package control

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netforge/protoperf/internal/logging"
	"github.com/netforge/protoperf/pkg/types"
)

// EventServer pushes impairment state transitions to connected observers
// over a websocket. Monitoring only; the orchestrator never depends on it.
type EventServer struct {
	upgrader       websocket.Upgrader
	allowedOrigins []string
	pingInterval   time.Duration
	logger         *logging.Logger

	mu       sync.RWMutex
	clients  map[*websocket.Conn]*eventConn
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type eventConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *eventConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(v)
}

func (c *eventConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

func NewEventServer(pingInterval time.Duration) *EventServer {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	s := &EventServer{
		pingInterval: pingInterval,
		logger:       logging.NewLogger("events"),
		clients:      make(map[*websocket.Conn]*eventConn),
		stopCh:       make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.isAllowedOrigin(r.Header.Get("Origin"))
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	s.wg.Add(1)
	go s.pingLoop()
	return s
}

func (s *EventServer) SetAllowedOrigins(origins []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowedOrigins = origins
}

func (s *EventServer) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", logging.F("error", err))
		return
	}
	defer conn.Close()

	// Clients only read; cap inbound frames to avoid memory abuse.
	conn.SetReadLimit(4096)

	client := &eventConn{conn: conn}
	s.mu.Lock()
	s.clients[conn] = client
	s.mu.Unlock()

	if err := client.writeJSON(map[string]interface{}{
		"type": "connected",
		"time": time.Now().Unix(),
	}); err != nil {
		s.removeClient(conn)
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.removeClient(conn)
}

// Broadcast sends a state transition to every connected observer. Wired to
// Service.OnStateChange.
func (s *EventServer) Broadcast(state types.ImpairmentState) {
	s.mu.RLock()
	clientList := make([]*eventConn, 0, len(s.clients))
	for _, c := range s.clients {
		clientList = append(clientList, c)
	}
	s.mu.RUnlock()

	event := map[string]interface{}{
		"type":      "state",
		"interface": state.Interface,
		"applied":   state.Applied(),
		"profile":   state.Profile(),
		"time":      time.Now().Unix(),
	}
	for _, client := range clientList {
		if err := client.writeJSON(event); err != nil {
			s.removeClient(client.conn)
		}
	}
}

func (s *EventServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()

		s.mu.Lock()
		for conn := range s.clients {
			conn.Close()
		}
		s.clients = make(map[*websocket.Conn]*eventConn)
		s.mu.Unlock()
	})
}

func (s *EventServer) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *EventServer) pingLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.RLock()
			clientList := make([]*eventConn, 0, len(s.clients))
			for _, c := range s.clients {
				clientList = append(clientList, c)
			}
			s.mu.RUnlock()

			for _, client := range clientList {
				if err := client.ping(); err != nil {
					s.removeClient(client.conn)
				}
			}
		}
	}
}

func (s *EventServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, allowed := range s.allowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
