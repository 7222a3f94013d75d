package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/api/websocket"
	"github.com/KevinKickass/OpenPoolCore/internal/auth"
	"github.com/KevinKickass/OpenPoolCore/internal/config"
	"github.com/KevinKickass/OpenPoolCore/internal/devices"
	"github.com/KevinKickass/OpenPoolCore/internal/interfaces"
	"github.com/KevinKickass/OpenPoolCore/internal/monitor"
	"github.com/KevinKickass/OpenPoolCore/internal/storage"
	"github.com/KevinKickass/OpenPoolCore/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
)

// poolDevice emulates a ProCon.IP controller.
type poolDevice struct {
	mu       sync.Mutex
	state    string
	dmx      string
	requests []string // "METHOD path?query body"
}

func (d *poolDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, r.Method+" "+r.URL.RequestURI()+" "+string(body))

	if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "pool-secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case "/GetState.csv":
		io.WriteString(w, d.state)
	case "/GetDmx.csv":
		io.WriteString(w, d.dmx)
	case "/usrcfg.cgi", "/Command.htm":
		io.WriteString(w, "OK")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (d *poolDevice) setState(state string) {
	d.mu.Lock()
	d.state = state
	d.mu.Unlock()
}

func (d *poolDevice) lastRequest() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.requests) == 0 {
		return ""
	}
	return d.requests[len(d.requests)-1]
}

type fakeHistory struct{}

func (fakeHistory) LatestSnapshots(ctx context.Context, name string, limit int) ([]storage.SnapshotRecord, error) {
	return []storage.SnapshotRecord{{ID: 1, Controller: name, Version: "1.7.3", Data: json.RawMessage(`{}`)}}, nil
}

func (fakeHistory) ListCommands(ctx context.Context, name string, limit int) ([]storage.CommandRecord, error) {
	return []storage.CommandRecord{}, nil
}

type fakeLifecycle struct {
	cfg     *config.Config
	manager *devices.Manager
	history storage.HistoryReader
}

func (f *fakeLifecycle) Config() *config.Config              { return f.cfg }
func (f *fakeLifecycle) ControllerManager() *devices.Manager { return f.manager }
func (f *fakeLifecycle) History() storage.HistoryReader      { return f.history }
func (f *fakeLifecycle) Shutdown(ctx context.Context) error  { return nil }
func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	total, reachable := f.manager.Count()
	return interfaces.SystemStatus{State: "RUNNING", ControllerCount: total, ReachableControllers: reachable}
}

type testEnv struct {
	handler    http.Handler
	device     *poolDevice
	lifecycle  *fakeLifecycle
	operator   string
	technician string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	state, err := os.ReadFile("../../procon/testdata/GetState.csv")
	if err != nil {
		t.Fatalf("Failed to read sample feed: %v", err)
	}
	dmx, err := os.ReadFile("../../procon/testdata/GetDmx.csv")
	if err != nil {
		t.Fatalf("Failed to read sample DMX feed: %v", err)
	}
	device := &poolDevice{state: string(state), dmx: string(dmx)}
	srv := httptest.NewServer(device)
	t.Cleanup(srv.Close)

	t.Setenv("OPC_REST_TEST_PASSWORD", "pool-secret")

	reg := prometheus.NewRegistry()
	metrics, err := monitor.NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	manager, err := devices.NewManager(nil, devices.Defaults{Timeout: 2 * time.Second, PollInterval: time.Minute}, logger)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	manager.AddListener(metrics)
	if _, err := manager.AddController(types.ControllerProfile{
		Name:        "main-pool",
		BaseURL:     srv.URL,
		Username:    "admin",
		PasswordEnv: "OPC_REST_TEST_PASSWORD",
	}); err != nil {
		t.Fatalf("AddController failed: %v", err)
	}

	gen := auth.NewMachineTokenGenerator()
	operator, operatorHash, err := gen.GenerateMachineToken()
	if err != nil {
		t.Fatalf("GenerateMachineToken failed: %v", err)
	}
	technician, technicianHash, err := gen.GenerateMachineToken()
	if err != nil {
		t.Fatalf("GenerateMachineToken failed: %v", err)
	}
	passwordHash, err := auth.NewPasswordHasher().HashPassword("admin-password")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	cfg := &config.Config{
		Server:  config.ServerConfig{HTTPPort: 8080, ShutdownTimeout: time.Second},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Auth: config.AuthConfig{
			JWTSecretEnv:           "OPC_REST_TEST_JWT",
			AccessTokenTTL:         time.Minute,
			RefreshTokenTTL:        time.Hour,
			MaxFailedLoginAttempts: 5,
			AccountLockDuration:    time.Minute,
			Users: []config.UserConfig{
				{Username: "admin", PasswordHash: passwordHash, Role: "admin"},
			},
			MachineTokens: []config.MachineTokenConfig{
				{Name: "dashboard", TokenHash: operatorHash, Permissions: []string{"operator"}},
				{Name: "automation", TokenHash: technicianHash, Permissions: []string{"operator", "technician"}},
			},
		},
	}

	authService := auth.NewAuthService(auth.NewMemoryStore(cfg.Auth), cfg.Auth, logger)
	lifecycle := &fakeLifecycle{cfg: cfg, manager: manager}
	hub := websocket.NewHub(logger, authService)

	server := NewServer(cfg, lifecycle, logger, hub, authService, reg)
	return &testEnv{
		handler:    server.Handler(),
		device:     device,
		lifecycle:  lifecycle,
		operator:   operator,
		technician: technician,
	}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error response %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"RUNNING"`) {
		t.Errorf("Expected lifecycle state in health response, got %s", rec.Body.String())
	}
}

func TestControllers_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/controllers", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/controllers", "opc_invalid", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestControllers_ListAndGet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/controllers", env.operator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list struct {
		Count       int `json:"count"`
		Controllers []struct {
			Name string `json:"name"`
		} `json:"controllers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if list.Count != 1 || list.Controllers[0].Name != "main-pool" {
		t.Errorf("Unexpected controller list %+v", list)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/controllers/main-pool", env.operator, nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/controllers/spare/state", env.operator, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "CONTROLLER_404" {
		t.Errorf("Expected CONTROLLER_404, got %s", code)
	}
}

func TestControllers_State(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/controllers/main-pool/state", env.operator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var state struct {
		Time   string `json:"time"`
		System struct {
			Version string `json:"version"`
		} `json:"system"`
		Relays []json.RawMessage `json:"relays"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if state.Time != "02:17" {
		t.Errorf("Expected time 02:17, got %s", state.Time)
	}
	if len(state.Relays) != 16 {
		t.Errorf("Expected 16 relays, got %d", len(state.Relays))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/controllers/main-pool/relays", env.operator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"relay_extension":false`) {
		t.Errorf("Expected relay_extension flag, got %s", rec.Body.String())
	}
}

func TestControllers_MalformedFeed(t *testing.T) {
	env := newTestEnv(t)
	env.device.setState("SYSINFO,1.7.3\n")

	rec := env.do(t, http.MethodGet, "/api/v1/controllers/main-pool/state?refresh=true", env.operator, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "FEED_502" {
		t.Errorf("Expected FEED_502, got %s", code)
	}
}

func TestControllers_SwitchRelay(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/controllers/main-pool/relays/"

	tests := []struct {
		name     string
		token    string
		relay    string
		body     any
		wantCode int
		wantErr  string
	}{
		{"operator forbidden", env.operator, "0", RelayRequest{Action: "on"}, http.StatusForbidden, "AUTH_403"},
		{"switch on", env.technician, "0", RelayRequest{Action: "on"}, http.StatusOK, ""},
		{"dosage relay", env.technician, "4", RelayRequest{Action: "on"}, http.StatusConflict, "RELAY_409"},
		{"external relay without extension", env.technician, "8", RelayRequest{Action: "off"}, http.StatusConflict, "RELAY_409"},
		{"unknown action", env.technician, "0", RelayRequest{Action: "toggle"}, http.StatusBadRequest, "RELAY_400"},
		{"missing action", env.technician, "0", map[string]string{}, http.StatusBadRequest, "RELAY_400"},
		{"bad relay id", env.technician, "x", RelayRequest{Action: "on"}, http.StatusBadRequest, "RELAY_400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, path+tt.relay, tt.token, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			if tt.wantErr != "" {
				if code := errorCode(t, rec); code != tt.wantErr {
					t.Errorf("Expected %s, got %s", tt.wantErr, code)
				}
			}
		})
	}

	// The successful switch is the only write to usrcfg.cgi
	env.device.mu.Lock()
	var writes []string
	for _, r := range env.device.requests {
		if strings.HasPrefix(r, "POST /usrcfg.cgi") {
			writes = append(writes, r)
		}
	}
	env.device.mu.Unlock()
	if len(writes) != 1 || writes[0] != "POST /usrcfg.cgi ENA=249,1&MANUAL=1" {
		t.Errorf("Unexpected usrcfg writes %q", writes)
	}
}

func TestControllers_Dosage(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/controllers/main-pool/dosage"

	rec := env.do(t, http.MethodPost, path, env.technician, map[string]any{"target": "chlorine", "duration": 60})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.device.lastRequest(); got != "GET /Command.htm?MAN_DOSAGE=0,60 " {
		t.Errorf("Unexpected dosage request %q", got)
	}

	tests := []struct {
		name string
		body any
	}{
		{"negative duration", map[string]any{"target": "ph_minus", "duration": -1}},
		{"unknown target", map[string]any{"target": "bromine", "duration": 10}},
		{"missing duration", map[string]any{"target": "ph_plus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, path, env.technician, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", rec.Code)
			}
			if code := errorCode(t, rec); code != "DOSAGE_400" {
				t.Errorf("Expected DOSAGE_400, got %s", code)
			}
		})
	}
}

func TestControllers_DMX(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/controllers/main-pool/dmx", env.operator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"channels":[0,10,20`) {
		t.Errorf("Unexpected DMX body %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPut, "/api/v1/controllers/main-pool/dmx/15", env.technician, map[string]int{"value": 255})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := env.device.lastRequest(); !strings.HasSuffix(got, "CH9_16=80,90,100,110,120,130,140,255&DMX512=1") {
		t.Errorf("Unexpected DMX write %q", got)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/controllers/main-pool/dmx/0", env.technician, map[string]int{"value": 300})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "DMX_400" {
		t.Errorf("Expected DMX_400, got %s", code)
	}
}

func TestControllers_History(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/controllers/main-pool/history", env.operator, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 without storage, got %d", rec.Code)
	}

	env.lifecycle.history = fakeHistory{}
	rec = env.do(t, http.MethodGet, "/api/v1/controllers/main-pool/history?limit=5", env.operator, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("Unexpected history body %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/controllers/main-pool/commands?limit=abc", env.operator, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/v1/controllers/main-pool/state", env.operator, nil); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{`procon_polls_total{controller="main-pool",result="success"} 1`, "procon_relay_state"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}

func TestLoginAndMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "admin", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "admin", Password: "admin-password"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var login LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if login.ExpiresIn != 60 || login.TokenType != "Bearer" {
		t.Errorf("Unexpected login response %+v", login)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/auth/me", login.AccessToken, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"username":"admin"`) {
		t.Errorf("Unexpected /me response %d: %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/users", login.AccessToken, nil); rec.Code != http.StatusOK {
		t.Errorf("Expected admin to list users, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/users", env.technician, nil); rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for technician, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodOptions, "/api/v1/controllers", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
