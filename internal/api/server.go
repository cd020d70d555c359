// Package api serves the chronicle over HTTP.
// GET endpoints are public and read-only.
// POST endpoints require the admin bearer token.
// Push endpoints (SSE and websocket) require the relay token.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/engine"
	"github.com/dakeena/living-chronicle/internal/omen"
	"github.com/dakeena/living-chronicle/internal/pantheon"
	"github.com/dakeena/living-chronicle/internal/population"
)

const (
	maxPushConns     = 8
	defaultMythLimit = 50
	maxMythLimit     = 500
)

// Archive is the read side of storage used for history queries.
type Archive interface {
	LoadGods(ctx context.Context, aliveOnly bool) ([]*pantheon.God, error)
	LoadMyths(ctx context.Context, limit int) ([]*population.Myth, error)
}

// Server serves world state over HTTP.
type Server struct {
	Runner   *engine.Runner
	Archive  Archive // optional; enables full god history and myths
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey string // Bearer token for push endpoints. Empty = push disabled.

	// CORSOrigins extends the localhost defaults.
	CORSOrigins []string

	// RunCtx bounds auto-runs started over the API. Request contexts end
	// with the request, so they cannot be used for the loop.
	RunCtx context.Context

	pushConns int32
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	adminLimiter := NewRateLimiter(60, time.Minute)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/citizens", s.handleCitizens)
	mux.HandleFunc("/api/v1/factions", s.handleFactions)
	mux.HandleFunc("/api/v1/gods", s.handleGods)
	mux.HandleFunc("/api/v1/myths", s.handleMyths)
	mux.HandleFunc("/api/v1/pantheon", s.handlePantheon)

	// Push endpoints (relay token).
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.HandleFunc("/api/v1/ws", s.handleWebsocket)

	// Admin endpoints (POST, admin token, rate limited).
	mux.HandleFunc("/api/v1/init", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleInit)))
	mux.HandleFunc("/api/v1/step", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleStep)))
	mux.HandleFunc("/api/v1/control", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleControl)))
	mux.HandleFunc("/api/v1/intervention", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleIntervention)))

	return corsMiddleware(s.CORSOrigins, mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.RunCtx == nil {
		s.RunCtx = ctx
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("HTTP API shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
func corsMiddleware(extra []string, next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	for _, origin := range extra {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowedOrigins[origin] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearer reports whether the request carries the given token.
func bearer(r *http.Request, token string) bool {
	auth := r.Header.Get("Authorization")
	return token != "" && strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == token
}

// adminOnly requires POST with the admin bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no CHRONICLE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !bearer(r, s.AdminKey) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// snapshot fetches a consistent copy of the world or writes the error.
func (s *Server) snapshot(w http.ResponseWriter) (*engine.Snapshot, bool) {
	snap, err := s.Runner.Snapshot()
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return snap, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}

	living := 0
	for _, c := range snap.Citizens {
		if c.Alive {
			living++
		}
	}

	status := map[string]any{
		"name":         "Living Chronicle",
		"day":          snap.Day,
		"era":          snap.Era,
		"days_in_era":  snap.DaysInEra,
		"era_duration": snap.EraDuration,
		"seed":         snap.Seed,
		"running":      snap.Running,
		"speed":        snap.Speed,
		"citizens":     living,
		"factions":     len(snap.Factions),
		"living_gods":  len(snap.Gods),
		"subscribers":  s.Runner.Hub().Len(),
	}
	if err := s.Runner.Err(); err != nil {
		status["last_error"] = err.Error()
	}
	writeJSON(w, status)
}

func (s *Server) handleCitizens(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}

	citizens := snap.Citizens
	if r.URL.Query().Get("alive") == "true" {
		citizens = citizens[:0:0]
		for _, c := range snap.Citizens {
			if c.Alive {
				citizens = append(citizens, c)
			}
		}
	}
	if raw := r.URL.Query().Get("faction"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid faction id", http.StatusBadRequest)
			return
		}
		filtered := citizens[:0:0]
		for _, c := range citizens {
			if c.FactionID != nil && *c.FactionID == id {
				filtered = append(filtered, c)
			}
		}
		citizens = filtered
	}
	writeJSON(w, citizens)
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, snap.Factions)
}

func (s *Server) handleGods(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		if s.Archive == nil {
			http.Error(w, "god history not available", http.StatusServiceUnavailable)
			return
		}
		gods, err := s.Archive.LoadGods(r.Context(), false)
		if err != nil {
			slog.Error("load gods failed", "error", err)
			http.Error(w, "load gods failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, gods)
		return
	}

	snap, ok := s.snapshot(w)
	if !ok {
		return
	}
	gods := snap.Gods
	if gods == nil {
		gods = []pantheon.God{}
	}
	writeJSON(w, gods)
}

func (s *Server) handleMyths(w http.ResponseWriter, r *http.Request) {
	if s.Archive == nil {
		http.Error(w, "myths not available", http.StatusServiceUnavailable)
		return
	}

	limit := defaultMythLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxMythLimit)
	}

	myths, err := s.Archive.LoadMyths(r.Context(), limit)
	if err != nil {
		slog.Error("load myths failed", "error", err)
		http.Error(w, "load myths failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, myths)
}

func (s *Server) handlePantheon(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshot(w)
	if !ok {
		return
	}

	type domainView struct {
		Domain    domain.Domain  `json:"domain"`
		Phase     pantheon.Phase `json:"phase"`
		Streak    int            `json:"ascending_streak"`
		God       *pantheon.God  `json:"god,omitempty"`
		Mean      float64        `json:"mean_belief"`
		Coherence float64        `json:"coherence"`
		Believers int            `json:"believers"`
	}

	views := make([]domainView, 0, domain.Count)
	for _, d := range domain.All {
		sh, agg := snap.Shrines[d], snap.Aggregates[d]
		views = append(views, domainView{
			Domain:    d,
			Phase:     sh.Phase,
			Streak:    sh.Streak,
			God:       sh.God,
			Mean:      agg.Mean,
			Coherence: agg.Coherence,
			Believers: agg.Believers,
		})
	}
	writeJSON(w, map[string]any{
		"day":     snap.Day,
		"era":     snap.Era,
		"domains": views,
	})
}

// handleInit restores the saved world, or creates a new one when fresh is
// set or nothing is saved. Auto-run is stopped first.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fresh bool   `json:"fresh"`
		Seed  *int64 `json:"seed,omitempty"`
	}
	// An empty body restores with the configured seed.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	s.Runner.Stop()

	var day int
	var seed int64
	err := s.Runner.Do(func(k *engine.Kernel) error {
		if req.Seed != nil {
			k.SetSeed(*req.Seed)
		}
		if err := k.Initialize(r.Context(), req.Fresh); err != nil {
			return err
		}
		day, seed = k.Day(), k.Seed()
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("world initialized over API", "fresh", req.Fresh, "day", day, "seed", seed)
	writeJSON(w, map[string]any{
		"status": "initialized",
		"fresh":  req.Fresh,
		"day":    day,
		"seed":   seed,
	})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	res, err := s.Runner.Step(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string  `json:"action"`
		Speed  float64 `json:"speed,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "start":
		speed := req.Speed
		if speed == 0 {
			speed = s.Runner.Speed()
		}
		if speed <= 0 || speed > 1000 {
			http.Error(w, "speed must be in (0, 1000]", http.StatusBadRequest)
			return
		}
		ctx := s.RunCtx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.Runner.Start(ctx, speed); err != nil {
			writeError(w, err)
			return
		}
		slog.Info("auto-run requested", "speed", speed)

	case "stop":
		s.Runner.Stop()
		slog.Info("auto-run stop requested")

	default:
		http.Error(w, "unknown action (use: start, stop)", http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]any{
		"running": s.Runner.Running(),
		"speed":   s.Runner.Speed(),
	})
}

func (s *Server) handleIntervention(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type   string   `json:"type"`
		Domain string   `json:"domain,omitempty"`
		Level  *float64 `json:"level,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	switch req.Type {
	case "disaster":
		var (
			ev    *omen.Event
			myths []*population.Myth
			day   int
		)
		err := s.Runner.Do(func(k *engine.Kernel) error {
			var err error
			ev, myths, err = k.Disaster(ctx)
			day = k.Day()
			return err
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"success": true, "day": day, "event": ev, "myths": myths})

	case "belief":
		d, err := domain.Parse(req.Domain)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Level == nil || *req.Level < 0 || *req.Level > 1 {
			http.Error(w, "level in [0,1] required for belief type", http.StatusBadRequest)
			return
		}
		err = s.Runner.Do(func(k *engine.Kernel) error {
			return k.ForceBelief(ctx, d, *req.Level)
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"success": true,
			"details": fmt.Sprintf("belief in %s set to %.2f for every living citizen", d, *req.Level),
		})

	default:
		http.Error(w, "unknown intervention type (use: disaster, belief)", http.StatusBadRequest)
	}
}

// writeError maps kernel errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	var se *engine.StorageError
	switch {
	case errors.Is(err, engine.ErrNotInitialized):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, engine.ErrRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &se):
		slog.Error("storage failure", "op", se.Op, "error", se.Err)
		http.Error(w, "storage failure: "+se.Op, http.StatusInternalServerError)
	default:
		slog.Error("request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
