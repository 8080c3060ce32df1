// Package gateway accepts WebSocket connections and demultiplexes them
// by negotiated subprotocol onto the presence and matchmaking services.
package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/riftgate/server/internal/config"
)

// SessionHandler processes one upgraded connection. Implementations run
// the protocol loop for a single client and return when the session ends.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *Conn)
}

// HandlerFunc adapts a plain function to the SessionHandler interface.
type HandlerFunc func(ctx context.Context, conn *Conn)

func (f HandlerFunc) HandleSession(ctx context.Context, conn *Conn) {
	f(ctx, conn)
}

// Acceptor listens for WebSocket upgrades on an HTTP port. Connections
// that negotiate the configured subprotocol go to the matched handler;
// everything else goes to the fallback.
type Acceptor struct {
	cfg      config.GatewayConfig
	matched  SessionHandler
	fallback SessionHandler
	logger   *zap.Logger

	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; handlers and logger must be
// non-nil.
func NewAcceptor(cfg config.GatewayConfig, matched, fallback SessionHandler, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:      cfg,
		matched:  matched,
		fallback: fallback,
		logger:   logger,
		quit:     make(chan struct{}),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return a
}

// ListenAndServe starts the HTTP listener and serves upgrades until Stop
// is called. This method blocks until the acceptor is stopped.
//
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	server := &http.Server{Handler: a}

	a.mu.Lock()
	a.listener = listener
	a.server = server
	a.running = true
	a.mu.Unlock()

	a.logger.Info("gateway listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("subprotocol", a.cfg.Subprotocol),
		zap.Duration("startup", time.Since(start)),
	)

	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		select {
		case <-a.quit:
			return nil
		default:
			return fmt.Errorf("serving on %s: %w", a.cfg.Addr(), err)
		}
	}
	return nil
}

// ServeHTTP upgrades the request and hands the connection to the handler
// selected by subprotocol.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler, subprotocol := a.route(r)

	responseHeader := http.Header{}
	if subprotocol != "" {
		responseHeader.Set("Sec-WebSocket-Protocol", subprotocol)
	}

	ws, err := a.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}
	if a.cfg.ReadLimit > 0 {
		ws.SetReadLimit(a.cfg.ReadLimit)
	}

	a.wg.Add(1)
	go a.handleConn(ws, handler)
}

// route picks the handler for a request. Subprotocol matching is
// case-insensitive; the echoed token keeps the client's spelling.
func (a *Acceptor) route(r *http.Request) (SessionHandler, string) {
	for _, offered := range websocket.Subprotocols(r) {
		if strings.EqualFold(offered, a.cfg.Subprotocol) {
			return a.matched, offered
		}
	}
	return a.fallback, ""
}

func (a *Acceptor) handleConn(ws *websocket.Conn, handler SessionHandler) {
	defer a.wg.Done()
	start := time.Now()
	addr := ws.RemoteAddr().String()

	a.logger.Info("client connected",
		zap.String("remote_addr", addr),
		zap.String("subprotocol", ws.Subprotocol()),
	)

	conn := NewConn(ws, a.cfg.OutboundQueueSize, a.cfg.WriteTimeout)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.quit:
			conn.Close()
			cancel()
		case <-ctx.Done():
		}
	}()

	handler.HandleSession(ctx, conn)

	a.logger.Info("session ended",
		zap.String("remote_addr", addr),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop gracefully stops the acceptor, closing the listener and waiting
// for active sessions to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return
	}
	a.running = false

	close(a.quit)
	if a.server != nil {
		a.server.Close()
	}
	a.wg.Wait()

	a.logger.Info("gateway stopped")
}

// Addr returns the actual listening address, or empty string if not yet
// listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently serving upgrades.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
