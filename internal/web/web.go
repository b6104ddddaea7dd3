package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"wallcal/internal/config"
	"wallcal/internal/edit"
	appLog "wallcal/internal/log"
	"wallcal/internal/model"
	"wallcal/internal/occurrence"
	"wallcal/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Subscriptions stores browser Web Push endpoints.
type Subscriptions interface {
	Save(ctx context.Context, endpoint, p256dh, auth, deviceName string) (model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// Server provides the calendar HTTP API and the change-notification
// websocket.
type Server struct {
	cfg     *config.Config
	store   store.Store
	subs    Subscriptions
	mux     *http.ServeMux
	hub     *Hub
	limiter *IPRateLimiter

	resolver *edit.Resolver
	memo     *occurrence.Memo
	grouper  occurrence.Grouper
}

// NewServer wires the API over s. subs may be nil, which disables the push
// subscription endpoints. home is the zone wall-clock times are read in.
func NewServer(cfg *config.Config, s store.Store, subs Subscriptions, home *time.Location) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	srv := &Server{
		cfg:      cfg,
		store:    s,
		subs:     subs,
		mux:      http.NewServeMux(),
		hub:      NewHub(),
		limiter:  NewIPRateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		resolver: edit.NewResolver(s),
		memo: occurrence.NewMemo(cfg.ExpandCacheTTL(), occurrence.Config{
			MaxOccurrencesPerDefinition: cfg.MaxOccurrencesPerDefinition,
		}),
		grouper: occurrence.Grouper{Home: home},
	}
	srv.registerRoutes()
	return srv
}

// Hub returns the websocket hub, which also delivers reminders to open
// clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the API wrapped in rate limiting and, when configured,
// basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		h = s.basicAuthMiddleware(h)
	}
	return s.limiter.Middleware(h)
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	s.watchStore(watchCtx)

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("web: listening", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appLog.Info("web: shutting down")
	s.hub.CloseAll()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/definitions", s.handleListDefinitions)
	s.mux.HandleFunc("POST /api/definitions", s.handleCreateDefinition)
	s.mux.HandleFunc("GET /api/definitions/{id}", s.handleGetDefinition)

	s.mux.HandleFunc("GET /api/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("PUT /api/occurrences/{id}", s.handleSaveOccurrence)
	s.mux.HandleFunc("DELETE /api/occurrences/{id}", s.handleDeleteOccurrence)
	s.mux.HandleFunc("GET /api/days", s.handleDays)

	s.mux.HandleFunc("GET /api/export", s.handleExportJSON)
	s.mux.HandleFunc("POST /api/import", s.handleImportJSON)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExportICS)
	s.mux.HandleFunc("POST /api/import.ics", s.handleImportICS)

	s.mux.HandleFunc("GET /api/reminder-options", s.handleReminderOptions)
	s.mux.HandleFunc("GET /api/push/key", s.handlePushKey)
	s.mux.HandleFunc("POST /api/push/subscriptions", s.handleSubscribe)
	s.mux.HandleFunc("DELETE /api/push/subscriptions", s.handleUnsubscribe)

	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// an empty username or password disables auth
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="wallcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("web: failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Partial bool   `json:"partial,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
