// Package observer streams tick reports to websocket clients.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marcus/hivemind/internal/dispatch"
	"github.com/marcus/hivemind/internal/logging"
)

// ProtocolVersion is sent in every message.
const ProtocolVersion = "1"

// Message types.
const (
	TypeHello = "HELLO"
	TypeTick  = "TICK"
)

const (
	writeTimeout       = 5 * time.Second
	defaultReadTimeout = 60 * time.Second
	sendBuffer         = 16
)

// Message is one frame on the stream.
type Message struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            int64            `json:"tick"`
	Report          *dispatch.Report `json:"report,omitempty"`
}

type client struct {
	id   uint64
	send chan []byte
}

// Hub fans tick reports out to connected clients. Slow clients drop frames
// rather than block the tick loop.
type Hub struct {
	mu      sync.Mutex
	clients map[uint64]*client
	last    *dispatch.Report
	nextID  atomic.Uint64
	dropped atomic.Uint64

	// readTimeout closes a connection that has answered no ping for this
	// long. Pings go out every pingInterval, which must be shorter.
	readTimeout  time.Duration
	pingInterval time.Duration

	upgrader websocket.Upgrader
	logger   *logging.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[uint64]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return isLoopbackRemote(r.RemoteAddr) },
		},
		readTimeout:  defaultReadTimeout,
		pingInterval: defaultReadTimeout * 9 / 10,
		logger:       logging.Component("observer"),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns the number of frames dropped for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Publish sends a tick report to every client.
func (h *Hub) Publish(r *dispatch.Report) {
	if r == nil {
		return
	}
	b, err := json.Marshal(Message{Type: TypeTick, ProtocolVersion: ProtocolVersion, Tick: r.Tick, Report: r})
	if err != nil {
		h.logger.Errorf("encoding report for tick %d: %v", r.Tick, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = r
	for _, c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// EventHandler returns a dispatcher event handler that publishes each
// finished tick.
func (h *Hub) EventHandler() dispatch.EventHandler {
	return func(e dispatch.Event) {
		if e.Type == dispatch.EventTickEnd {
			h.Publish(e.Report)
		}
	}
}

func (h *Hub) join() (*client, []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &client{id: h.nextID.Add(1), send: make(chan []byte, sendBuffer)}
	h.clients[c.id] = c

	hello := Message{Type: TypeHello, ProtocolVersion: ProtocolVersion, Report: h.last}
	if h.last != nil {
		hello.Tick = h.last.Tick
	}
	b, _ := json.Marshal(hello)
	return c, b
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c.id)
}

// ServeHTTP upgrades the request and streams reports until the client leaves.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	c, hello := h.join()
	defer h.leave(c)
	h.logger.Debugf("client %d connected from %s", c.id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	writeErr := make(chan error, 1)
	go func() {
		ping := time.NewTicker(h.pingInterval)
		defer ping.Stop()

		write := func(typ int, b []byte) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			return conn.WriteMessage(typ, b)
		}
		if err := write(websocket.TextMessage, hello); err != nil {
			writeErr <- err
			return
		}
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b := <-c.send:
				if err := write(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			case <-ping.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	// Clients only send pongs; the loop notices disconnects and missed pongs.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	cancel()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
	h.logger.Debugf("client %d disconnected", c.id)
}

// Serve listens on addr and serves the stream at /ws until ctx is done.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Infof("observer listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("observer: %w", err)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
