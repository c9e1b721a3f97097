// Package devserver serves a built Piral instance and notifies connected
// browsers over /$events when it has been rebuilt.
package devserver

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventsPath is where the reload client connects.
const EventsPath = "/$events"

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// event is sent to clients after a rebuild.
type event struct {
	Type string `json:"type"`
}

// Server serves the files in a directory and the reload event stream.
type Server struct {
	dir     string
	page    string
	logger  *zerolog.Logger
	files   http.Handler
	mu      sync.Mutex
	clients map[chan event]struct{}
}

// New returns a server for the output directory dir. page is the HTML file
// served for paths that do not match a file; empty means index.html.
func New(dir, page string, logger *zerolog.Logger) *Server {
	if page == "" {
		page = "index.html"
	}
	if logger == nil {
		logger = &log.Logger
	}
	return &Server{
		dir:     dir,
		page:    page,
		logger:  logger,
		files:   http.FileServer(http.Dir(dir)),
		clients: map[chan event]struct{}{},
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == EventsPath {
		s.serveEvents(w, r)
		return
	}

	urlPath := path.Clean("/" + r.URL.Path)
	if urlPath != "/" && !strings.HasSuffix(urlPath, "/") {
		if info, err := os.Stat(filepath.Join(s.dir, filepath.FromSlash(urlPath))); err == nil && !info.IsDir() {
			s.files.ServeHTTP(w, r)
			return
		}
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filepath.Join(s.dir, s.page))
}

// Notify tells every connected client to reload.
func (s *Server) Notify() {
	s.broadcast(event{Type: "reload"})
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) broadcast(evt event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *Server) subscribe() chan event {
	ch := make(chan event, 1)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan event) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.subscribe()
	defer s.unsubscribe(events)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// The client never sends; reading only surfaces pongs and the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case evt := <-events:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
