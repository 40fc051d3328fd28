// Package ops serves the operator HTTP endpoint: liveness and session stats.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/YouMeAI/YouMeCare/core/buildinfo"
	"github.com/YouMeAI/YouMeCare/core/logger"
	"github.com/YouMeAI/YouMeCare/core/telegram/state"
)

// Sources feeds the /stats payload.
type Sources struct {
	Store      state.Store
	SendErrors func() uint64
	Provider   string
	Model      string
	Now        func() time.Time
}

// Stats is the /stats response body.
type Stats struct {
	Sessions   int            `json:"sessions"`
	ByState    map[string]int `json:"by_state"`
	ByTier     map[string]int `json:"by_tier"`
	SendErrors uint64         `json:"send_errors"`
	Provider   string         `json:"provider,omitempty"`
	Model      string         `json:"model,omitempty"`
	Build      buildinfo.Info `json:"build"`
	Uptime     string         `json:"uptime"`
}

// Server is a small chi-based HTTP server.
type Server struct {
	src     Sources
	started time.Time
	router  chi.Router

	mu         sync.Mutex
	srv        *http.Server
	done       chan error
	sendErrors func() uint64
}

// New builds the router. Nothing listens until Start is called.
func New(src Sources) *Server {
	if src.Now == nil {
		src.Now = time.Now
	}
	s := &Server{src: src, started: src.Now(), sendErrors: src.SendErrors}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", s.health)
	r.Get("/stats", s.stats)
	s.router = r
	return s
}

// SetSendErrors swaps the send error counter, which only exists once the
// Telegram runtime has started.
func (s *Server) SetSendErrors(fn func() uint64) {
	s.mu.Lock()
	s.sendErrors = fn
	s.mu.Unlock()
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds listen and serves in the background. The returned address is
// the one actually bound, which matters for ":0".
func (s *Server) Start(ctx context.Context, listen string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return s.srv.Addr, nil
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return "", err
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.srv = srv
	s.done = make(chan error, 1)

	logger.Info(ctx, "ops", "listen", slog.String("addr", srv.Addr))
	go func(done chan<- error) {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			logger.Error(context.Background(), "ops", "serve.fail", slog.String("err", err.Error()))
		}
		done <- err
	}(s.done)
	return srv.Addr, nil
}

// Shutdown stops the server gracefully. It is a no-op if Start was never called.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.done = nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	err := <-done
	logger.Info(ctx, "ops", "stopped")
	return err
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Collect())
}

// Collect builds a stats snapshot.
func (s *Server) Collect() Stats {
	st := Stats{
		ByState:  map[string]int{},
		ByTier:   map[string]int{},
		Provider: s.src.Provider,
		Model:    s.src.Model,
		Build:    buildinfo.Read(),
		Uptime:   s.src.Now().Sub(s.started).Round(time.Second).String(),
	}
	if s.src.Store != nil {
		for _, sess := range s.src.Store.Snapshot() {
			st.Sessions++
			st.ByState[string(sess.State)]++
			st.ByTier[string(sess.Tier)]++
		}
	}
	s.mu.Lock()
	sendErrors := s.sendErrors
	s.mu.Unlock()
	if sendErrors != nil {
		st.SendErrors = sendErrors()
	}
	return st
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn(context.Background(), "ops", "encode.fail", slog.String("err", err.Error()))
	}
}
