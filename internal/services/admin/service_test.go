package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/hostkernel/internal/host"
	"github.com/danmuck/hostkernel/internal/plugins"
	"github.com/danmuck/hostkernel/internal/state"
	"github.com/danmuck/hostkernel/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type counter struct {
	N int `toml:"n"`
}

var counterKind = state.ValueKind[counter]("test.counter")

type staticCatalog []plugins.Metadata

func (c staticCatalog) Metadata() []plugins.Metadata { return c }

type agent string

func (a agent) Name() string { return string(a) }

func newTestService(t *testing.T) (*host.App, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	app := host.New(host.WithLogger(testlog.Start(t)), host.WithID("admin-test"))
	t.Cleanup(app.Close)
	cfg := DefaultConfig()
	svc := NewService(app, cfg, staticCatalog{{Name: "admin", Version: version}})
	app.RegisterService(svc)
	return app, svc
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rr, body
}

func TestHealthAndListings(t *testing.T) {
	app, svc := newTestService(t)
	if err := app.AttachAgent(agent("console")); err != nil {
		t.Fatalf("AttachAgent: %v", err)
	}

	rr, body := get(t, svc.Handler(), "/health")
	if rr.Code != http.StatusOK || body["app"] != "admin-test" || body["phase"] != string(host.PhaseIdle) {
		t.Fatalf("unexpected /health %d %#v", rr.Code, body)
	}

	_, body = get(t, svc.Handler(), "/services")
	list, _ := body["services"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["name"] != ServiceName {
		t.Fatalf("unexpected /services %#v", body)
	}

	_, body = get(t, svc.Handler(), "/plugins")
	if pl, _ := body["plugins"].([]any); len(pl) != 1 {
		t.Fatalf("unexpected /plugins %#v", body)
	}

	_, body = get(t, svc.Handler(), "/agents")
	if ag, _ := body["agents"].([]any); len(ag) != 1 || ag[0] != "console" {
		t.Fatalf("unexpected /agents %#v", body)
	}
}

func TestReadinessFollowsPhase(t *testing.T) {
	_, svc := newTestService(t)
	rr, _ := get(t, svc.Handler(), "/ready")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before run, got %d", rr.Code)
	}
	rr, _ = get(t, svc.Handler(), "/live")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected live 200, got %d", rr.Code)
	}
}

func TestStateEndpoints(t *testing.T) {
	app, svc := newTestService(t)
	state.Initialize(app.Store(), counterKind, counter{N: 4})

	rr, body := get(t, svc.Handler(), "/state/test.counter")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	value, _ := body["value"].(map[string]any)
	if value["n"] != float64(4) {
		t.Fatalf("unexpected slice body %#v", body)
	}

	rr, _ = get(t, svc.Handler(), "/state/missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	_, body = get(t, svc.Handler(), "/state")
	all, _ := body["state"].(map[string]any)
	if _, ok := all["host.services"]; !ok {
		t.Fatalf("expected host.services in snapshot %#v", all)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, svc := newTestService(t)
	get(t, svc.Handler(), "/health")
	rr, _ := get(t, svc.Handler(), "/metrics")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "hostkernel_http_requests_total") {
		t.Fatalf("metrics missing request counter:\n%s", rr.Body.String())
	}
}

func TestWatchStreamsLatestState(t *testing.T) {
	app, svc := newTestService(t)
	state.Initialize(app.Store(), counterKind, counter{N: 1})

	srv := httptest.NewServer(svc.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/state/test.counter/watch"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg stateMessage
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if msg.Value.(map[string]any)["n"] != float64(1) {
		t.Fatalf("unexpected first message %#v", msg)
	}

	if err := state.Update(app.Store(), counterKind, func(v *state.Value[counter]) { v.V.N = 9 }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := ws.ReadJSON(&msg); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if msg.Value.(map[string]any)["n"] != float64(9) {
		t.Fatalf("unexpected update message %#v", msg)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	app, _ := newTestService(t)
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	svc := NewService(app, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for svc.Addr() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if svc.Addr() == nil {
		t.Fatalf("service never bound")
	}
	resp, err := http.Get("http://" + svc.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestShutdownRequiresToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := host.New(host.WithLogger(testlog.Start(t)))
	defer app.Close()
	cfg := DefaultConfig()
	cfg.Token = "s3cret"
	svc := NewService(app, cfg, nil)

	req := httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	rr := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	select {
	case <-app.Done():
		t.Fatalf("unauthenticated shutdown accepted")
	default:
	}

	req = httptest.NewRequest(http.MethodPost, "/shutdown", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	select {
	case <-app.Done():
	case <-time.After(time.Second):
		t.Fatalf("shutdown not triggered")
	}
}
