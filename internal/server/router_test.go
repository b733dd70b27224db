package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hiktan44/whatsappmini-sub000/internal/auth"
	"github.com/hiktan44/whatsappmini-sub000/internal/config"
	"github.com/hiktan44/whatsappmini-sub000/internal/handler"
	"github.com/hiktan44/whatsappmini-sub000/internal/hub"
	"github.com/hiktan44/whatsappmini-sub000/internal/model"
	"github.com/hiktan44/whatsappmini-sub000/internal/qr"
	"github.com/hiktan44/whatsappmini-sub000/internal/session"
	"github.com/hiktan44/whatsappmini-sub000/internal/store"
	"github.com/hiktan44/whatsappmini-sub000/internal/waclient"
)

func testTokenConfig() auth.TokenConfig {
	return auth.TokenConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: auth.Issuer}
}

func newTestRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		QRTTL:               time.Minute,
		InitTimeout:         time.Minute,
		PendingTTL:          time.Hour,
		ConnectedTTL:        24 * time.Hour,
		PendingMaxAge:       time.Hour,
		ConnectedMaxAge:     24 * time.Hour,
		JanitorInterval:     5 * time.Minute,
		SimulateScanEnabled: true,
		MaxSessions:         500,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	st := store.NewMemory()
	wsHub := hub.New()
	orch := session.NewOrchestrator(session.Deps{
		Store:    st,
		Registry: qr.NewRegistry(st),
		Clients:  waclient.NewManager(&waclient.SimulatedFactory{}, zerolog.Nop()),
		Config:   cfg,
		Logger:   zerolog.Nop(),
		Notifier: &handler.StatusNotifier{Hub: wsHub},
	})
	t.Cleanup(orch.Close)

	return NewRouter(Deps{
		Service:     orch,
		Counter:     orch,
		Hub:         wsHub,
		TokenConfig: testTokenConfig(),
		MaxSessions: cfg.MaxSessions,
		Logger:      zerolog.Nop(),
	}), wsHub
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
		}
	}
	return w, resp
}

func pollStatus(t *testing.T, r *gin.Engine, token, sessionID, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var resp map[string]any
	for time.Now().Before(deadline) {
		var w *httptest.ResponseRecorder
		w, resp = doJSON(t, r, http.MethodPost, "/v1/session-status", token, map[string]any{"session_id": sessionID})
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if resp["status"] == want {
			return resp
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %s, last: %v", want, resp)
	return nil
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Fatalf("expected ok, got %v", resp["status"])
	}
	if resp["sessions"] != float64(0) || resp["clients"] != float64(0) {
		t.Fatalf("expected zero counters, got %v", resp)
	}
}

func TestHealth_DegradedAboveThreshold(t *testing.T) {
	r, _ := newTestRouter(t, func(cfg *config.Config) { cfg.MaxSessions = 1 })

	token, err := auth.CreateToken("user-1", testTokenConfig())
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}
	w, _ := doJSON(t, r, http.MethodPost, "/v1/initialize-session", token, map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp map[string]any
	_ = json.Unmarshal(w2.Body.Bytes(), &resp)
	if resp["status"] != "degraded" {
		t.Fatalf("expected degraded, got %v", resp)
	}
}

func TestInitialize_RequiresAuth(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w, _ := doJSON(t, r, http.MethodPost, "/v1/initialize-session", "", map[string]any{})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	token, err := auth.CreateToken("user-1", testTokenConfig())
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	// init
	w, resp := doJSON(t, r, http.MethodPost, "/v1/initialize-session", token, map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	sessionID, _ := resp["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected session_id, got %v", resp)
	}

	// poll until the QR shows up
	status := pollStatus(t, r, token, sessionID, string(model.StatusWaitingForScan))
	qrObj, ok := status["qr"].(map[string]any)
	if !ok {
		t.Fatalf("expected qr object, got %v", status)
	}
	if payload, _ := qrObj["payload"].(string); payload == "" {
		t.Fatalf("expected qr payload, got %v", qrObj)
	}
	if image, _ := qrObj["image_png"].(string); image == "" {
		t.Fatalf("expected qr image, got %v", qrObj)
	}

	// scan
	w, resp = doJSON(t, r, http.MethodPost, "/v1/simulate-scan", token, map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["status"] != string(model.StatusConnected) {
		t.Fatalf("expected connected, got %v", resp)
	}
	if resp["connected_at"] == nil {
		t.Fatalf("expected connected_at, got %v", resp)
	}

	// disconnect
	w, resp = doJSON(t, r, http.MethodPost, "/v1/disconnect", token, map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if resp["status"] != string(model.StatusDisconnected) {
		t.Fatalf("expected disconnected, got %v", resp)
	}

	// status after disconnect
	_, resp = doJSON(t, r, http.MethodPost, "/v1/session-status", token, map[string]any{"session_id": sessionID})
	if resp["status"] != string(model.StatusDisconnected) {
		t.Fatalf("expected disconnected, got %v", resp)
	}

	// a fresh init replaces the disconnected session
	w, resp = doJSON(t, r, http.MethodPost, "/v1/initialize-session", token, map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	newID, _ := resp["session_id"].(string)
	if newID == "" || newID == sessionID {
		t.Fatalf("expected a fresh session id, got %q (old %q)", newID, sessionID)
	}
	pollStatus(t, r, token, newID, string(model.StatusWaitingForScan))
}

func TestSessionStatus_MalformedBody(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	token, _ := auth.CreateToken("user-1", testTokenConfig())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/session-status", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestSessionStatus_UnknownSession(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	token, _ := auth.CreateToken("user-1", testTokenConfig())

	w, resp := doJSON(t, r, http.MethodPost, "/v1/session-status", token, map[string]any{"session_id": "nope"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp["status"] != string(model.StatusNoSession) {
		t.Fatalf("expected no_session, got %v", resp)
	}
}

func TestSimulateScan_DisabledReturns403(t *testing.T) {
	r, _ := newTestRouter(t, func(cfg *config.Config) { cfg.SimulateScanEnabled = false })
	token, _ := auth.CreateToken("user-1", testTokenConfig())

	w, resp := doJSON(t, r, http.MethodPost, "/v1/simulate-scan", token, map[string]any{})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if resp["error"] != "simulate_scan_disabled" {
		t.Fatalf("unexpected error: %v", resp)
	}
}

func TestWebSocket_StatusStream(t *testing.T) {
	r, wsHub := newTestRouter(t, nil)
	srv := httptest.NewServer(r)
	defer srv.Close()

	token, err := auth.CreateToken("user-1", testTokenConfig())
	if err != nil {
		t.Fatalf("CreateToken: %v", err)
	}

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the server side to register the connection.
	deadline := time.Now().Add(2 * time.Second)
	for wsHub.Subscribers("user-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Kick off a session; the QR transition should arrive as a frame.
	w, _ := doJSON(t, r, http.MethodPost, "/v1/initialize-session", token, map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	var frame struct {
		Type    string `json:"type"`
		Session struct {
			Status string `json:"status"`
		} `json:"session"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame %q: %v", data, err)
	}
	if frame.Type != "session-status" {
		t.Fatalf("expected session-status frame, got %q", frame.Type)
	}
	if frame.Session.Status != string(model.StatusWaitingForScan) {
		t.Fatalf("expected waiting_for_scan frame, got %q", frame.Session.Status)
	}
}

func TestWebSocket_RejectsBadToken(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ws?token=garbage", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
