package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dakeena/living-chronicle/internal/domain"
	"github.com/dakeena/living-chronicle/internal/engine"
	"github.com/dakeena/living-chronicle/internal/persistence"
)

const (
	testAdminKey = "admin-secret"
	testRelayKey = "relay-secret"
)

func newTestServer(t *testing.T, initialize bool) (*Server, *engine.Runner) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	k := engine.NewKernel(db, 12345, engine.DefaultGenesis())
	if initialize {
		if err := k.Initialize(context.Background(), true); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
	}
	r := engine.NewRunner(k, engine.NewHub(8))
	r.Interval = 5 * time.Millisecond
	t.Cleanup(r.Stop)

	return &Server{
		Runner:   r,
		Archive:  db,
		AdminKey: testAdminKey,
		RelayKey: testRelayKey,
		RunCtx:   context.Background(),
	}, r
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestStatusBeforeInitialize(t *testing.T) {
	s, _ := newTestServer(t, false)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/status", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/status", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Day      int    `json:"day"`
		Era      string `json:"era"`
		Citizens int    `json:"citizens"`
		Factions int    `json:"factions"`
	}
	decode(t, rec, &got)
	if got.Day != 0 || got.Era != "Emergence" || got.Citizens != 29 || got.Factions != 3 {
		t.Errorf("status = %+v", got)
	}
}

func TestCitizenFilters(t *testing.T) {
	s, r := newTestServer(t, true)
	h := s.Handler()

	snap, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	fid := snap.Factions[0].ID

	var members []map[string]any
	decode(t, do(t, h, http.MethodGet, "/api/v1/citizens?alive=true&faction="+itoa(fid), "", ""), &members)
	if len(members) != 8 {
		t.Errorf("faction members = %d, want 8", len(members))
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/citizens?faction=abc", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad faction id = %d, want 400", rec.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	s, _ := newTestServer(t, true)
	h := s.Handler()

	if rec := do(t, h, http.MethodGet, "/api/v1/step", testAdminKey, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET step = %d, want 405", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/step", "wrong", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", rec.Code)
	}

	s.AdminKey = ""
	if rec := do(t, s.Handler(), http.MethodPost, "/api/v1/step", "", ""); rec.Code != http.StatusForbidden {
		t.Errorf("no admin key = %d, want 403", rec.Code)
	}
}

func TestStep(t *testing.T) {
	s, _ := newTestServer(t, true)
	h := s.Handler()

	for want := 1; want <= 3; want++ {
		rec := do(t, h, http.MethodPost, "/api/v1/step", testAdminKey, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("step = %d: %s", rec.Code, rec.Body.String())
		}
		var res engine.TickResult
		decode(t, rec, &res)
		if res.Day != want {
			t.Errorf("day = %d, want %d", res.Day, want)
		}
	}
}

func TestInit(t *testing.T) {
	s, r := newTestServer(t, false)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/init", testAdminKey, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("init = %d: %s", rec.Code, rec.Body.String())
	}
	for i := 0; i < 4; i++ {
		do(t, h, http.MethodPost, "/api/v1/step", testAdminKey, "")
	}

	// Restore keeps the saved world and its seed.
	var got struct {
		Day  int   `json:"day"`
		Seed int64 `json:"seed"`
	}
	decode(t, do(t, h, http.MethodPost, "/api/v1/init", testAdminKey, `{"seed":99}`), &got)
	if got.Day != 4 || got.Seed != 12345 {
		t.Errorf("restore = %+v, want day 4 seed 12345", got)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/control", testAdminKey, `{"action":"start","speed":10}`); rec.Code != http.StatusOK {
		t.Fatalf("start = %d", rec.Code)
	}
	decode(t, do(t, h, http.MethodPost, "/api/v1/init", testAdminKey, `{"fresh":true,"seed":99}`), &got)
	if got.Day != 0 || got.Seed != 99 {
		t.Errorf("fresh = %+v, want day 0 seed 99", got)
	}
	if r.Running() {
		t.Error("init should stop auto-run")
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/init", testAdminKey, `{"fresh":`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", rec.Code)
	}
}

func TestBeliefIntervention(t *testing.T) {
	s, r := newTestServer(t, true)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/intervention", testAdminKey, `{"type":"belief","domain":"river","level":0.9}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("belief = %d: %s", rec.Code, rec.Body.String())
	}
	snap, _ := r.Snapshot()
	for _, c := range snap.Citizens {
		if c.Alive && c.Beliefs[domain.River] != 0.9 {
			t.Fatalf("%s river belief = %.2f, want 0.9", c.Name, c.Beliefs[domain.River])
		}
	}

	bad := []string{
		`{"type":"belief","domain":"thunder","level":0.5}`,
		`{"type":"belief","domain":"sky"}`,
		`{"type":"belief","domain":"sky","level":1.5}`,
		`{"type":"plague"}`,
		`not json`,
	}
	for _, body := range bad {
		if rec := do(t, h, http.MethodPost, "/api/v1/intervention", testAdminKey, body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s = %d, want 400", body, rec.Code)
		}
	}
}

func TestDisasterIntervention(t *testing.T) {
	s, _ := newTestServer(t, true)
	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/intervention", testAdminKey, `{"type":"disaster"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("disaster = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Day   int `json:"day"`
		Event struct {
			Magnitude float64 `json:"magnitude"`
		} `json:"event"`
	}
	decode(t, rec, &got)
	if got.Day != 0 {
		t.Errorf("disaster advanced the day to %d", got.Day)
	}
	if got.Event.Magnitude <= 0 {
		t.Errorf("disaster magnitude = %v", got.Event.Magnitude)
	}
}

func TestGodsAndMyths(t *testing.T) {
	s, _ := newTestServer(t, true)
	h := s.Handler()

	for i := 0; i < 10; i++ {
		if rec := do(t, h, http.MethodPost, "/api/v1/step", testAdminKey, ""); rec.Code != http.StatusOK {
			t.Fatalf("step = %d", rec.Code)
		}
	}

	rec := do(t, h, http.MethodGet, "/api/v1/gods", "", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "[") {
		t.Errorf("gods = %d %q", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/gods?all=true", "", ""); rec.Code != http.StatusOK {
		t.Errorf("gods?all = %d", rec.Code)
	}

	var myths []map[string]any
	decode(t, do(t, h, http.MethodGet, "/api/v1/myths?limit=2", "", ""), &myths)
	if len(myths) > 2 {
		t.Errorf("myths = %d, want at most 2", len(myths))
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/myths?limit=-1", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit = %d, want 400", rec.Code)
	}

	s.Archive = nil
	if rec := do(t, s.Handler(), http.MethodGet, "/api/v1/myths", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("myths without archive = %d, want 503", rec.Code)
	}
}

func TestPantheonView(t *testing.T) {
	s, _ := newTestServer(t, true)
	var got struct {
		Domains []struct {
			Domain string `json:"domain"`
			Phase  string `json:"phase"`
		} `json:"domains"`
	}
	decode(t, do(t, s.Handler(), http.MethodGet, "/api/v1/pantheon", "", ""), &got)
	if len(got.Domains) != domain.Count {
		t.Fatalf("domains = %d, want %d", len(got.Domains), domain.Count)
	}
	if got.Domains[0].Domain != "river" {
		t.Errorf("first domain = %q", got.Domains[0].Domain)
	}
}

func TestControlStartStop(t *testing.T) {
	s, r := newTestServer(t, true)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/control", testAdminKey, `{"action":"start","speed":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body.String())
	}
	if !r.Running() {
		t.Fatal("runner not running after start")
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/step", testAdminKey, ""); rec.Code != http.StatusConflict {
		t.Errorf("step while running = %d, want 409", rec.Code)
	}

	time.Sleep(20 * time.Millisecond)
	if rec := do(t, h, http.MethodPost, "/api/v1/control", testAdminKey, `{"action":"stop"}`); rec.Code != http.StatusOK {
		t.Fatalf("stop = %d", rec.Code)
	}
	if r.Running() {
		t.Error("runner still running after stop")
	}
	snap, _ := r.Snapshot()
	if snap.Day == 0 {
		t.Error("auto-run never ticked")
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/control", testAdminKey, `{"action":"start","speed":-2}`); rec.Code != http.StatusBadRequest {
		t.Errorf("negative speed = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/control", testAdminKey, `{"action":"rewind"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action = %d, want 400", rec.Code)
	}
}

func waitForSubscriber(t *testing.T, r *engine.Runner) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Hub().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no subscriber registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamDeliversTicks(t *testing.T) {
	s, r := newTestServer(t, true)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/stream")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", resp.StatusCode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/stream", nil)
	req.Header.Set("Authorization", "Bearer "+testRelayKey)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	waitForSubscriber(t, r)
	if _, err := r.Step(context.Background()); err != nil {
		t.Fatal(err)
	}

	sc := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for sc.Scan() {
		line := sc.Text()
		if line == "event: tick" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var res engine.TickResult
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &res); err != nil {
				t.Fatal(err)
			}
			if res.Day != 1 {
				t.Errorf("streamed day = %d, want 1", res.Day)
			}
			return
		}
	}
	t.Fatalf("stream ended without a tick: %v", sc.Err())
}

func TestWebsocketDeliversTicks(t *testing.T) {
	s, r := newTestServer(t, true)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial without token succeeded")
	} else if resp != nil && resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+testRelayKey, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	waitForSubscriber(t, r)
	if _, err := r.Step(context.Background()); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var res engine.TickResult
	if err := conn.ReadJSON(&res); err != nil {
		t.Fatal(err)
	}
	if res.Day != 1 {
		t.Errorf("pushed day = %d, want 1", res.Day)
	}
}

func TestPushDisabledWithoutRelayKey(t *testing.T) {
	s, _ := newTestServer(t, true)
	s.RelayKey = ""
	if rec := do(t, s.Handler(), http.MethodGet, "/api/v1/stream", "", ""); rec.Code != http.StatusForbidden {
		t.Errorf("stream = %d, want 403", rec.Code)
	}
}

func TestCORSOrigins(t *testing.T) {
	s, _ := newTestServer(t, true)
	s.CORSOrigins = []string{" https://chronicle.example "}
	h := s.Handler()

	tests := []struct {
		origin string
		want   string
	}{
		{"https://chronicle.example", "https://chronicle.example"},
		{"http://localhost:5173", "http://localhost:5173"},
		{"https://evil.example", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
		req.Header.Set("Origin", tt.origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("%s: preflight = %d", tt.origin, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("%s: allow origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Error("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Error("other clients are independent")
	}
	if got := rl.RetryAfter("a"); got != 61 {
		t.Errorf("RetryAfter = %d, want 61", got)
	}

	now = now.Add(time.Minute)
	if !rl.Allow("a") {
		t.Error("window reset should allow again")
	}

	now = now.Add(3 * time.Minute)
	rl.Allow("c")
	if _, ok := rl.buckets["b"]; ok {
		t.Error("idle bucket not swept")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.1:5000"

	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first = %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Errorf("second = %d, Retry-After %q", rec.Code, rec.Header().Get("Retry-After"))
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
