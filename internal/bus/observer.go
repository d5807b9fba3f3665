package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/normanking/divan/internal/logging"
)

const (
	// AuditEndpoint is the websocket path for the audit stream.
	AuditEndpoint = "/ws/audit"

	// HealthEndpoint reports observer liveness and client count.
	HealthEndpoint = "/healthz"

	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before it is dropped.
	pongWait = 60 * time.Second

	// pingPeriod keeps idle connections alive; must be under pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames; clients only listen.
	maxMessageSize = 512
)

// ObserverConfig configures the websocket audit observer.
type ObserverConfig struct {
	// Addr is the listen address, e.g. ":8741". ":0" picks a free port.
	Addr string

	// HistorySize is how many recent events are replayed to a new client
	// (capped by what the bus retained).
	HistorySize int
}

// DefaultObserverConfig returns the standing observer settings.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		Addr:        ":8741",
		HistorySize: DefaultHistorySize,
	}
}

// Observer serves the bus over websocket so every decision, outcome, and
// training pass is auditable live. New clients get the retained history
// first, then the live stream.
type Observer struct {
	bus      *Bus
	cfg      ObserverConfig
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener
	log      *logging.Logger

	clients    map[*observerClient]bool
	clientsMu  sync.RWMutex
	register   chan *observerClient
	unregister chan *observerClient

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	runMu   sync.Mutex
	subID   SubscriptionID
}

type observerClient struct {
	conn   *websocket.Conn
	send   chan []byte
	replay int
	log    *logging.Logger
}

// NewObserver creates an observer attached to the bus, zero-filling config
// from defaults.
func NewObserver(b *Bus, cfg ObserverConfig) *Observer {
	def := DefaultObserverConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Observer{
		bus: b,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The audit stream is local tooling; cross-origin monitors
			// are expected.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:        logging.Global().WithComponent("observer"),
		clients:    make(map[*observerClient]bool),
		register:   make(chan *observerClient),
		unregister: make(chan *observerClient),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start binds the listen address, subscribes to the bus, and serves until
// Stop. Returns once the listener is bound, so Addr is valid immediately.
func (o *Observer) Start() error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running {
		return fmt.Errorf("observer already running")
	}

	ln, err := net.Listen("tcp", o.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind observer address %s: %w", o.cfg.Addr, err)
	}
	o.listener = ln

	o.subID = o.bus.Subscribe(EventAny, o.forward)

	mux := http.NewServeMux()
	mux.HandleFunc(AuditEndpoint, o.handleAudit)
	mux.HandleFunc(HealthEndpoint, o.handleHealth)
	o.server = &http.Server{Handler: mux}

	o.wg.Add(1)
	go o.manageClients()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.log.Info("audit observer listening on %s", ln.Addr())
		if err := o.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			o.log.Error("observer server: %v", err)
		}
	}()

	o.running = true
	return nil
}

// Addr returns the bound listen address, for clients and tests.
func (o *Observer) Addr() string {
	if o.listener == nil {
		return o.cfg.Addr
	}
	return o.listener.Addr().String()
}

// Stop closes every client and shuts the server down.
func (o *Observer) Stop() error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if !o.running {
		return nil
	}
	o.running = false

	if o.subID != "" {
		_ = o.bus.Unsubscribe(o.subID)
	}
	o.cancel()

	o.clientsMu.Lock()
	for c := range o.clients {
		close(c.send)
		c.conn.Close()
		delete(o.clients, c)
	}
	o.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("observer shutdown: %w", err)
	}

	o.wg.Wait()
	o.log.Info("audit observer stopped")
	return nil
}

// ClientCount returns the number of connected audit clients.
func (o *Observer) ClientCount() int {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	return len(o.clients)
}

func (o *Observer) manageClients() {
	defer o.wg.Done()
	for {
		select {
		case c := <-o.register:
			o.clientsMu.Lock()
			o.clients[c] = true
			count := len(o.clients)
			o.clientsMu.Unlock()
			o.log.Debug("audit client connected (%d total)", count)
			o.replayTo(c)

		case c := <-o.unregister:
			o.clientsMu.Lock()
			if _, ok := o.clients[c]; ok {
				delete(o.clients, c)
				close(c.send)
				c.conn.Close()
			}
			count := len(o.clients)
			o.clientsMu.Unlock()
			o.log.Debug("audit client disconnected (%d remaining)", count)

		case <-o.ctx.Done():
			return
		}
	}
}

// replayTo queues the retained history for a fresh client, oldest first,
// so a late subscriber still sees how the stream got here.
func (o *Observer) replayTo(c *observerClient) {
	for _, ev := range o.bus.HistoryTail(c.replay) {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			return
		}
	}
}

func (o *Observer) handleAudit(w http.ResponseWriter, r *http.Request) {
	replay := o.cfg.HistorySize
	if r.URL.Query().Get("replay") == "false" {
		replay = 0
	} else if n := r.URL.Query().Get("count"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil && parsed >= 0 {
			replay = parsed
		}
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.log.Warn("websocket upgrade failed: %v", err)
		return
	}

	c := &observerClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		replay: replay,
		log:    o.log.WithField("remote", conn.RemoteAddr().String()),
	}
	o.register <- c

	o.wg.Add(2)
	go o.writePump(c)
	go o.readPump(c)
}

// writePump drains the client's send queue and keeps the connection alive
// with pings. One writer per connection, per gorilla/websocket's contract.
func (o *Observer) writePump(c *observerClient) {
	defer o.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-o.ctx.Done():
			return
		}
	}
}

// readPump exists to detect the close handshake; clients never send data.
func (o *Observer) readPump(c *observerClient) {
	defer o.wg.Done()
	defer func() {
		select {
		case o.unregister <- c:
		case <-o.ctx.Done():
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("audit client read: %v", err)
			}
			return
		}
	}
}

// forward pushes one bus event to every connected client. A client that
// cannot keep up is disconnected rather than backing up the stream.
func (o *Observer) forward(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		o.log.Warn("marshal audit event %s: %v", ev.ID, err)
		return
	}

	o.clientsMu.RLock()
	stale := make([]*observerClient, 0)
	for c := range o.clients {
		select {
		case c.send <- data:
		default:
			stale = append(stale, c)
		}
	}
	o.clientsMu.RUnlock()

	for _, c := range stale {
		select {
		case o.unregister <- c:
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Observer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := struct {
		Status      string `json:"status"`
		Clients     int    `json:"clients"`
		Subscribers int    `json:"bus_subscribers"`
		History     int    `json:"history"`
	}{
		Status:      "healthy",
		Clients:     o.ClientCount(),
		Subscribers: o.bus.SubscriberCount(),
		History:     len(o.bus.History()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
