// Package inspect exposes a store's internals over HTTP for debugging:
// a JSON snapshot of every atom, basic stats, and a live websocket stream
// of engine events.
//
// The server implements nucleo.Observer. Wire it into a store at
// construction and attach the store for the snapshot endpoints:
//
//	insp := inspect.New()
//	store := nucleo.NewStore(nucleo.WithObserver(insp))
//	insp.Attach(store)
//	http.ListenAndServe("localhost:7878", insp.Handler())
package inspect

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nucleo-dev/nucleo/pkg/nucleo"
)

// eventBuffer is the size of the observer-to-pump channel. Events beyond a
// full buffer are dropped rather than blocking the store.
const eventBuffer = 1024

// clientBuffer is the per-client send buffer. A client that cannot drain it
// is disconnected.
const clientBuffer = 256

// Option configures the inspect server.
type Option func(*Server)

// WithLogger sets the server's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server is a devtools HTTP server for one store.
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	events   chan nucleo.Event
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	store   *nucleo.Store
	clients map[string]*client
	dropped uint64
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan nucleo.Event
}

// New creates an inspect server and starts its event pump.
func New(opts ...Option) *Server {
	s := &Server{
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local debugging tool.
			},
		},
		events:  make(chan nucleo.Event, eventBuffer),
		done:    make(chan struct{}),
		clients: make(map[string]*client),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.pump()
	return s
}

// Attach binds the store whose snapshot the HTTP endpoints serve.
func (s *Server) Attach(store *nucleo.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = store
}

// Close stops the event pump and disconnects all clients.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.done) })
}

// StoreEvent implements nucleo.Observer. It never blocks: when the buffer
// is full the event is dropped and counted.
func (s *Server) StoreEvent(ev nucleo.Event) {
	select {
	case s.events <- ev:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
	}
}

// Handler returns the HTTP handler serving the inspect API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/atoms", s.handleAtoms)
	r.Get("/stats", s.handleStats)
	r.Get("/events", s.handleEvents)
	return r
}

// pump fans events out to connected clients until Close.
func (s *Server) pump() {
	for {
		select {
		case <-s.done:
			s.mu.Lock()
			for _, c := range s.clients {
				close(c.send)
			}
			s.clients = make(map[string]*client)
			s.mu.Unlock()
			return
		case ev := <-s.events:
			s.mu.RLock()
			var slow []string
			for id, c := range s.clients {
				select {
				case c.send <- ev:
				default:
					slow = append(slow, id)
				}
			}
			s.mu.RUnlock()
			for _, id := range slow {
				s.dropClient(id)
			}
		}
	}
}

func (s *Server) dropClient(id string) {
	s.mu.Lock()
	c, ok := s.clients[id]
	if ok {
		delete(s.clients, id)
	}
	s.mu.Unlock()
	if ok {
		close(c.send)
		s.logger.Debug("inspect: dropped slow client", "client", id)
	}
}

func (s *Server) handleAtoms(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	store := s.store
	s.mu.RUnlock()
	if store == nil {
		http.Error(w, "no store attached", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, store.Snapshot())
}

// stats is the payload of the /stats endpoint.
type stats struct {
	MountedAtoms  int    `json:"mountedAtoms"`
	Clients       int    `json:"clients"`
	DroppedEvents uint64 `json:"droppedEvents"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	store := s.store
	st := stats{Clients: len(s.clients), DroppedEvents: s.dropped}
	s.mu.RUnlock()
	if store != nil {
		st.MountedAtoms = store.MountedCount()
	}
	writeJSON(w, st)
}

// handleEvents upgrades to a websocket and streams engine events as JSON,
// one event per text message.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("inspect: websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan nucleo.Event, clientBuffer),
	}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.logger.Debug("inspect: client connected", "client", c.id)

	go s.writeLoop(c)

	// Reader: discard inbound messages, detect disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.dropClient(c.id)
	conn.Close()
}

func (s *Server) writeLoop(c *client) {
	for ev := range c.send {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.dropClient(c.id)
			return
		}
	}
	c.conn.Close()
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
