package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"goaltrack/common/logger"
	"goaltrack/common/ws"
)

const (
	channelPath      = "/channel"
	statusPath       = "/status"
	writeTimeout     = 10 * time.Second
	clientBufferSize = 16
)

// ChannelServer hosts the worker side of the worker-app message channel.
// Foreground pages connect over a local websocket; inbound envelopes become
// message events on the agent, and the worker posts messages back by
// broadcasting to every connected page. Each direction is FIFO on its own;
// the two directions are independent.
type ChannelServer struct {
	log    *logger.Logger
	agent  *Agent
	hub    *ws.Hub
	server *http.Server
	addr   string

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]*ws.Conn

	wg sync.WaitGroup
}

// NewChannelServer creates the channel server for the given listen address.
func NewChannelServer(log *logger.Logger, agent *Agent, addr string) (*ChannelServer, error) {
	if agent == nil {
		return nil, fmt.Errorf("agent is required")
	}
	if addr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	s := &ChannelServer{
		log:   log,
		agent: agent,
		hub:   ws.NewHub(),
		addr:  addr,
		conns: make(map[string]*ws.Conn),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(channelPath, s.handleChannel)
	mux.HandleFunc(statusPath, s.handleStatus)
	s.server = &http.Server{Handler: mux}

	return s, nil
}

// Start begins listening. The channel is loopback-only plumbing between the
// app and its worker, so the address should stay on 127.0.0.1.
func (s *ChannelServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logInfo("Worker channel listening", "addr", listener.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logWarn("Channel server stopped", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down and disconnects all pages. Upgraded websocket
// connections are hijacked from the HTTP server, so they are closed
// explicitly to unblock their read loops.
func (s *ChannelServer) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)

	s.mu.Lock()
	for _, conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.hub.Stop()
	s.wg.Wait()
	return err
}

// Addr returns the bound address, empty before Start.
func (s *ChannelServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// PostToApp broadcasts a message to every connected page.
func (s *ChannelServer) PostToApp(msg ws.Message) {
	s.hub.Broadcast(msg)
}

// FindByOrigin satisfies WindowRegistry: a connected page counts as an open
// app window reachable through the channel.
func (s *ChannelServer) FindByOrigin(origin string) (Window, bool) {
	if s.hub.ClientCount() == 0 {
		return nil, false
	}
	return &channelWindow{hub: s.hub}, true
}

// OpenWindow is a no-op here: the daemon cannot open browser windows. The
// route is logged so the click is still traceable.
func (s *ChannelServer) OpenWindow(url string) error {
	s.logInfo("No connected page for notification click", "url", url)
	return nil
}

// channelWindow addresses the set of connected pages as one logical window.
type channelWindow struct {
	hub *ws.Hub
}

func (w *channelWindow) Focus() error { return nil }

func (w *channelWindow) PostMessage(msgType string, data map[string]interface{}) error {
	w.hub.Broadcast(ws.Message{Type: msgType, Data: data})
	return nil
}

func (s *ChannelServer) handleChannel(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.UpgradeHTTP(w, r)
	if err != nil {
		s.logWarn("Channel upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	clientID := uuid.NewString()
	outbound := make(chan ws.Message, clientBufferSize)
	s.hub.Register(clientID, outbound)

	s.mu.Lock()
	s.conns[clientID] = conn
	s.mu.Unlock()
	s.wg.Add(1)
	defer s.wg.Done()

	s.logDebug("Page connected to worker channel", "client", clientID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range outbound {
			msg := msg
			if err := conn.WriteMessage(&msg, writeTimeout); err != nil {
				return
			}
		}
	}()

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure) {
				s.logDebug("Channel connection dropped", "client", clientID, "error", err)
			}
			break
		}

		var msg ws.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logDebug("Discarding malformed channel envelope", "client", clientID, "error", err)
			continue
		}

		s.agent.Dispatch(r.Context(), Event{Type: EventMessage, Message: &msg})
	}

	s.hub.Unregister(clientID)
	s.mu.Lock()
	delete(s.conns, clientID)
	s.mu.Unlock()
	conn.Close()
	<-done
}

func (s *ChannelServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.agent.Status())
}

func (s *ChannelServer) logInfo(msg string, args ...interface{}) {
	if s.log != nil {
		s.log.Info(msg, args...)
	}
}

func (s *ChannelServer) logDebug(msg string, args ...interface{}) {
	if s.log != nil {
		s.log.Debug(msg, args...)
	}
}

func (s *ChannelServer) logWarn(msg string, args ...interface{}) {
	if s.log != nil {
		s.log.Warn(msg, args...)
	}
}
