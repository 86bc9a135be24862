package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeusync/intellitrack/internal/config"
	"github.com/zeusync/intellitrack/internal/core/events/bus"
	"github.com/zeusync/intellitrack/internal/core/observability/log"
	"github.com/zeusync/intellitrack/internal/core/space"
	"github.com/zeusync/intellitrack/pkg/generic"
)

// TypeReady is the first message every feed client receives.
const TypeReady = "feed.ready"

const defaultBuffer = 64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var buffers = generic.NewPool(func() *bytes.Buffer {
	return new(bytes.Buffer)
}, (*bytes.Buffer).Reset)

// Message is what the feed writes to websocket clients.
type Message struct {
	Type   string             `json:"type"`
	Time   time.Time          `json:"time"`
	Entity *space.EntityEvent `json:"entity,omitempty"`
}

type client struct {
	conn   *websocket.Conn
	send   chan Message
	prefix string
	done   chan struct{}
	once   sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.done) }) }

type Option func(*Feed)

// WithGatherer exposes the gathered metrics on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(f *Feed) { f.gatherer = g }
}

// Feed serves the entity tree over HTTP and streams space events to
// websocket clients:
//
//	GET /events[?prefix=path]  websocket stream of Message
//	GET /resolve?path=path     one entity as JSON
//	GET /paths                 every registered path
//	GET /metrics               prometheus metrics, with WithGatherer
type Feed struct {
	bus      bus.EventBus
	space    *space.Space
	log      log.Log
	cfg      config.ServerConfig
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
	sub      bus.Subscription

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool

	srvMu  sync.Mutex
	server *http.Server
	addr   net.Addr
}

// NewFeed subscribes to every event on b. Close releases the subscription.
func NewFeed(b bus.EventBus, s *space.Space, logger log.Log, cfg config.ServerConfig, opts ...Option) (*Feed, error) {
	if b == nil || s == nil {
		return nil, fmt.Errorf("feed needs a bus and a space: %w", ErrInvalidConfig)
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if logger == nil {
		logger = log.Nop()
	}
	f := &Feed{
		bus:     b,
		space:   s,
		log:     logger.Named("feed"),
		cfg:     cfg,
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.mux = http.NewServeMux()
	f.mux.HandleFunc("GET /events", f.handleEvents)
	f.mux.HandleFunc("GET /resolve", f.handleResolve)
	f.mux.HandleFunc("GET /paths", f.handlePaths)
	if f.gatherer != nil {
		f.mux.Handle("GET /metrics", promhttp.HandlerFor(f.gatherer, promhttp.HandlerOpts{}))
	}

	sub, err := b.Subscribe(bus.Wildcard, f.broadcast)
	if err != nil {
		return nil, fmt.Errorf("subscribe feed: %w", err)
	}
	f.sub = sub
	return f, nil
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mux.ServeHTTP(w, r)
}

// Start listens on the configured address and serves in the background.
func (f *Feed) Start(ctx context.Context) error {
	f.srvMu.Lock()
	defer f.srvMu.Unlock()
	if f.isClosed() {
		return ErrFeedClosed
	}
	if f.server != nil {
		return ErrAlreadyRunning
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", f.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrListen, err)
	}
	srv := &http.Server{Handler: f, ReadHeaderTimeout: 5 * time.Second}
	f.server, f.addr = srv, ln.Addr()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Error("feed server failed", log.Error(err))
		}
	}()
	f.log.Info("feed listening", log.String("address", ln.Addr().String()))
	return nil
}

// Addr is the address Start bound, or nil when not running.
func (f *Feed) Addr() net.Addr {
	f.srvMu.Lock()
	defer f.srvMu.Unlock()
	return f.addr
}

// Stop disconnects every client and shuts the listener down.
func (f *Feed) Stop(ctx context.Context) error {
	f.srvMu.Lock()
	defer f.srvMu.Unlock()
	if f.server == nil {
		return ErrNotRunning
	}
	f.disconnectAll()
	err := f.server.Shutdown(ctx)
	f.server, f.addr = nil, nil
	f.log.Info("feed stopped")
	return err
}

// Close releases the bus subscription and disconnects every client.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.mu.Unlock()
	f.disconnectAll()
	return f.bus.Unsubscribe(f.sub)
}

// Clients is the number of connected websocket clients.
func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Feed) broadcast(ev bus.Event) error {
	ee, ok := ev.Data().(space.EntityEvent)
	if !ok {
		return nil
	}
	msg := Message{Type: ev.Type(), Time: ev.Timestamp(), Entity: &ee}

	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		if !matches(c.prefix, ee) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			delete(f.clients, c)
			c.close()
			f.log.Warn("slow feed client dropped", log.String("remote", c.conn.RemoteAddr().String()))
		}
	}
	return nil
}

func matches(prefix string, ev space.EntityEvent) bool {
	if prefix == "" {
		return true
	}
	under := func(p string) bool {
		return p == prefix || strings.HasPrefix(p, prefix+space.Separator)
	}
	return under(ev.Path) || (ev.OldPath != "" && under(ev.OldPath))
}

func (f *Feed) handleEvents(w http.ResponseWriter, r *http.Request) {
	if f.isClosed() {
		http.Error(w, ErrFeedClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Debug("websocket upgrade failed", log.Error(err))
		return
	}
	c := &client{
		conn:   conn,
		send:   make(chan Message, f.cfg.Buffer),
		prefix: r.URL.Query().Get("prefix"),
		done:   make(chan struct{}),
	}
	c.send <- Message{Type: TypeReady, Time: time.Now().UTC()}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		_ = conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()
	f.log.Debug("feed client connected", log.String("remote", conn.RemoteAddr().String()), log.String("prefix", c.prefix))

	go f.writeLoop(c)
	// clients only listen; reading detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.drop(c)
}

func (f *Feed) writeLoop(c *client) {
	defer func() { _ = c.conn.Close() }()
	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(time.Second)
			if f.cfg.WriteTimeout > 0 {
				deadline = time.Now().Add(f.cfg.WriteTimeout)
			}
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			return
		case msg := <-c.send:
			if f.cfg.WriteTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(f.cfg.WriteTimeout))
			}
			if err := writeMessage(c.conn, msg); err != nil {
				f.log.Debug("feed write failed", log.Error(err))
				f.drop(c)
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	buf := buffers.Get()
	defer buffers.Put(buf)
	if err := json.NewEncoder(buf).Encode(msg); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

func (f *Feed) drop(c *client) {
	f.mu.Lock()
	delete(f.clients, c)
	f.mu.Unlock()
	c.close()
}

func (f *Feed) disconnectAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.clients {
		delete(f.clients, c)
		c.close()
	}
}

// EntityView is the JSON form of an entity.
type EntityView struct {
	ID       uint64   `json:"id"`
	Kind     string   `json:"kind"`
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children"`
}

func viewOf(e *space.Entity) EntityView {
	v := EntityView{
		ID:       e.ID(),
		Kind:     e.Kind(),
		Name:     e.Name(),
		Path:     e.Path(),
		Children: []string{},
	}
	if p := e.Parent(); p != nil {
		v.Parent = p.Path()
	}
	for _, c := range e.Children() {
		v.Children = append(v.Children, c.Name())
	}
	return v
}

func (f *Feed) handleResolve(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing path"))
		return
	}
	e, err := f.space.Resolve(path)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(e))
}

func (f *Feed) handlePaths(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, f.space.Paths())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
