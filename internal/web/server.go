// Package web provides the HTTP server of a study station: the status
// page, the shared signal store API (primary) and simulated button presses.
package web

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sweeney/study-station/internal/status"
	"github.com/sweeney/study-station/internal/store"
)

// ErrUnknownButton is returned by a Presser for a button it does not own.
var ErrUnknownButton = errors.New("unknown button")

// maxPress bounds a simulated press.
const maxPress = 30 * time.Second

// Presser simulates a button press of the given length.
type Presser interface {
	Press(button string, d time.Duration) error
}

// Options selects the optional endpoints.
type Options struct {
	// Store, if set, is served under /api/signal and /api/measurements.
	Store store.SignalStore
	// Presser, if set, enables POST /api/press/{button}?ms=N.
	Presser Presser
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	presser    Presser
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts Options) *Server {
	s := &Server{tracker: tracker, presser: opts.Presser}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	if opts.Store != nil {
		store.RegisterAPI(mux, opts.Store)
	}
	if opts.Presser != nil {
		mux.HandleFunc("POST /api/press/{button}", s.handlePress)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Handler returns the request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	button := r.PathValue("button")
	d := 100 * time.Millisecond
	if v := r.URL.Query().Get("ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 || time.Duration(ms)*time.Millisecond > maxPress {
			http.Error(w, "ms must be a positive duration up to 30000", http.StatusBadRequest)
			return
		}
		d = time.Duration(ms) * time.Millisecond
	}

	if err := s.presser.Press(button, d); err != nil {
		if errors.Is(err, ErrUnknownButton) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Printf("web: press %s: %v", button, err)
		http.Error(w, "press failed", http.StatusInternalServerError)
		return
	}
	log.Printf("web: simulated %s press (%v)", button, d)
	w.WriteHeader(http.StatusAccepted)
}
