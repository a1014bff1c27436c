package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dialplane/dialplane/internal/callstore"
	"github.com/dialplane/dialplane/internal/config"
	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/database/models"
	"github.com/dialplane/dialplane/internal/dialer"
	"github.com/dialplane/dialplane/internal/orchestrator"
	"github.com/dialplane/dialplane/internal/recordings"
	"github.com/dialplane/dialplane/internal/routing"
	"github.com/dialplane/dialplane/internal/telnyx"
)

// testEnv wires a full server against a real SQLite database and a stubbed
// telephony provider that accepts every command.
type testEnv struct {
	srv *Server
	db  *database.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/calls":
			w.Write([]byte(`{"data":{"call_control_id":"cc-test","call_session_id":"sess-test","call_leg_id":"leg-test"}}`))
		case strings.HasPrefix(r.URL.Path, "/recordings"),
			strings.HasPrefix(r.URL.Path, "/call_events"),
			strings.HasPrefix(r.URL.Path, "/phone_numbers"):
			w.Write([]byte(`{"data":[],"meta":{"total_pages":1}}`))
		default:
			w.Write([]byte(`{"data":{}}`))
		}
	}))
	t.Cleanup(provider.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := telnyx.NewClient(provider.URL, "test-key")
	sessions := callstore.NewMemoryStore()

	agents := database.NewAgentRepository(db)
	numbers := database.NewInboundNumberRepository(db)
	voiceSettings := database.NewVoiceSettingsRepository(db)
	activeCalls := database.NewActiveCallRepository(db)
	callRecords := database.NewCallRecordRepository(db)

	resolver := routing.NewResolver(agents, numbers, voiceSettings, "sip.telnyx.com", "", logger)
	orch := orchestrator.New(client, sessions, resolver, agents, activeCalls, callRecords, nil, logger)
	dl := dialer.New(client, sessions, callRecords, dialer.Config{
		CallControlAppID:  "app-1",
		SIPConnectionID:   "conn-1",
		SIPDomain:         "sip.telnyx.com",
		DefaultFromNumber: "+15550009999",
	}, logger)
	rec := recordings.NewReconciler(client, callRecords, logger)

	cfg := &config.Config{HTTPPort: 8080, LogLevel: "info", LogFormat: "text"}
	srv := NewServer(cfg, Deps{
		DB:           db,
		Orchestrator: orch,
		Dialer:       dl,
		Reconciler:   rec,
		Sessions:     sessions,
		JWTSecret:    []byte("server-test-jwt-secret"),
	})
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, db: db}
}

// createAgent inserts an agent with a known password and returns it.
func (e *testEnv) createAgent(t *testing.T, name, email, sipUsername, password string) *models.Agent {
	t.Helper()
	hash, err := database.HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	agent := &models.Agent{
		Name:         name,
		Email:        email,
		SIPUsername:  sipUsername,
		PasswordHash: hash,
		Status:       models.AgentAvailable,
	}
	if err := database.NewAgentRepository(e.db).Create(context.Background(), agent); err != nil {
		t.Fatalf("creating agent: %v", err)
	}
	return agent
}

// login returns a bearer token for the given credentials.
func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rr := e.request(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": email, "password": password}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	var env struct {
		Data loginResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return env.Data.Token
}

// request performs an HTTP request against the server, optionally with a
// JSON body and bearer token.
func (e *testEnv) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.srv.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if env.Error != "" {
		t.Fatalf("unexpected error in envelope: %q", env.Error)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rr := e.request(t, http.MethodGet, "/api/v1/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var data map[string]string
	decodeData(t, rr, &data)
	if data["status"] != "ok" {
		t.Errorf("status = %q, want ok", data["status"])
	}
}

func TestLoginAndMe(t *testing.T) {
	e := newTestEnv(t)
	agent := e.createAgent(t, "Ada", "ada@example.com", "sip_ada", "correct horse battery")

	token := e.login(t, "ada@example.com", "correct horse battery")

	rr := e.request(t, http.MethodGet, "/api/v1/auth/me", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d %s", rr.Code, rr.Body.String())
	}

	var me agentResponse
	decodeData(t, rr, &me)
	if me.ID != agent.ID {
		t.Errorf("me.id = %d, want %d", me.ID, agent.ID)
	}
	if me.SIPUsername != "sip_ada" {
		t.Errorf("me.sip_username = %q, want sip_ada", me.SIPUsername)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Ada", "ada@example.com", "sip_ada", "correct horse battery")

	rr := e.request(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "ada@example.com", "password": "wrong"}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestLoginRejectsUnknownEmail(t *testing.T) {
	e := newTestEnv(t)

	rr := e.request(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "nobody@example.com", "password": "whatever"}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newTestEnv(t)

	paths := []string{
		"/api/v1/auth/me",
		"/api/v1/calls/active",
		"/api/v1/calls/records",
		"/api/v1/agents",
	}
	for _, path := range paths {
		rr := e.request(t, http.MethodGet, path, nil, "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without token, got %d", path, rr.Code)
		}
	}
}

func TestWebhookAlwaysAcks(t *testing.T) {
	e := newTestEnv(t)

	// Garbage payload is acknowledged so the provider stops retrying.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader("not json"))
	rr := httptest.NewRecorder()
	e.srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("garbage webhook: expected 200, got %d", rr.Code)
	}

	payload := `{"data":{"event_type":"call.initiated","occurred_at":"2026-03-01T10:00:00Z","payload":{
		"call_control_id":"cc-1","call_session_id":"sess-1","call_leg_id":"leg-1",
		"direction":"incoming","from":"+14045550100","to":"+16785550123"}}}`
	req = httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", strings.NewReader(payload))
	rr = httptest.NewRecorder()
	e.srv.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("valid webhook: expected 200, got %d", rr.Code)
	}

	count, err := e.srv.sessions.Count(context.Background())
	if err != nil {
		t.Fatalf("counting sessions: %v", err)
	}
	if count != 1 {
		t.Errorf("tracked sessions = %d, want 1", count)
	}
}

func TestDialEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Ada", "ada@example.com", "sip_ada", "correct horse battery")
	token := e.login(t, "ada@example.com", "correct horse battery")

	rr := e.request(t, http.MethodPost, "/api/v1/calls/dial",
		map[string]string{"to": "+16785550123"}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rr.Code, rr.Body.String())
	}

	var result dialer.Result
	decodeData(t, rr, &result)
	if result.CallControlID != "cc-test" {
		t.Errorf("call_control_id = %q, want cc-test", result.CallControlID)
	}
	if result.CallSid == "" {
		t.Error("expected non-empty call sid")
	}

	rec, err := database.NewCallRecordRepository(e.db).GetBySid(context.Background(), result.CallSid)
	if err != nil {
		t.Fatalf("querying call record: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a call record for the dial")
	}
	if rec.Direction != models.DirectionOutbound {
		t.Errorf("direction = %q, want outbound", rec.Direction)
	}
}

func TestDialRejectsInvalidDestination(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Ada", "ada@example.com", "sip_ada", "correct horse battery")
	token := e.login(t, "ada@example.com", "correct horse battery")

	rr := e.request(t, http.MethodPost, "/api/v1/calls/dial",
		map[string]string{"to": "not-a-number"}, token)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAgentCRUD(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Admin", "admin@example.com", "sip_admin", "correct horse battery")
	token := e.login(t, "admin@example.com", "correct horse battery")

	rr := e.request(t, http.MethodPost, "/api/v1/agents", map[string]any{
		"name":         "Grace",
		"email":        "grace@example.com",
		"sip_username": "sip_grace",
		"password":     "another good one",
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	var created agentResponse
	decodeData(t, rr, &created)
	if created.Status != models.AgentOffline {
		t.Errorf("new agent status = %q, want offline", created.Status)
	}

	rr = e.request(t, http.MethodGet, "/api/v1/agents", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rr.Code)
	}
	var list []agentResponse
	decodeData(t, rr, &list)
	if len(list) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(list))
	}

	rr = e.request(t, http.MethodPut, "/api/v1/agents/"+itoa(created.ID)+"/status",
		map[string]string{"status": "available"}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d %s", rr.Code, rr.Body.String())
	}

	rr = e.request(t, http.MethodDelete, "/api/v1/agents/"+itoa(created.ID), nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}

	rr = e.request(t, http.MethodGet, "/api/v1/agents/"+itoa(created.ID), nil, token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted: expected 404, got %d", rr.Code)
	}
}

func TestAgentValidation(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Admin", "admin@example.com", "sip_admin", "correct horse battery")
	token := e.login(t, "admin@example.com", "correct horse battery")

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"email": "x@example.com", "password": "long enough pw"}},
		{"bad email", map[string]any{"name": "X", "email": "nope", "password": "long enough pw"}},
		{"short password", map[string]any{"name": "X", "email": "x@example.com", "password": "short"}},
		{"bad sip username", map[string]any{"name": "X", "email": "x@example.com", "sip_username": "has spaces", "password": "long enough pw"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := e.request(t, http.MethodPost, "/api/v1/agents", tt.body, token)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestNumberLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Admin", "admin@example.com", "sip_admin", "correct horse battery")
	token := e.login(t, "admin@example.com", "correct horse battery")

	// Numbers must belong to an existing organization.
	rr := e.request(t, http.MethodPost, "/api/v1/numbers", map[string]any{
		"number": "+16785550123", "org_id": 99, "enabled": true,
	}, token)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("orphan number: expected 400, got %d", rr.Code)
	}

	rr = e.request(t, http.MethodPost, "/api/v1/organizations",
		map[string]string{"name": "Acme Dispatch"}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create org: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	var org orgResponse
	decodeData(t, rr, &org)

	rr = e.request(t, http.MethodPost, "/api/v1/numbers", map[string]any{
		"number": "(678) 555-0123", "org_id": org.ID, "label": "Main line", "enabled": true,
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create number: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	var num numberResponse
	decodeData(t, rr, &num)
	if num.Number != "+16785550123" {
		t.Errorf("number normalized to %q, want +16785550123", num.Number)
	}

	rr = e.request(t, http.MethodGet, "/api/v1/numbers", nil, token)
	var nums []numberResponse
	decodeData(t, rr, &nums)
	if len(nums) != 1 {
		t.Fatalf("expected 1 number, got %d", len(nums))
	}
}

func TestVoiceSettingsRoundTrip(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Admin", "admin@example.com", "sip_admin", "correct horse battery")
	token := e.login(t, "admin@example.com", "correct horse battery")

	rr := e.request(t, http.MethodPost, "/api/v1/organizations",
		map[string]string{"name": "Acme"}, token)
	var org orgResponse
	decodeData(t, rr, &org)

	// Unset settings report mode "none".
	rr = e.request(t, http.MethodGet, "/api/v1/organizations/"+itoa(org.ID)+"/voice-settings", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	var vs voiceSettingsResponse
	decodeData(t, rr, &vs)
	if vs.FallbackMode != models.FallbackModeNone {
		t.Errorf("default fallback_mode = %q, want none", vs.FallbackMode)
	}

	rr = e.request(t, http.MethodPut, "/api/v1/organizations/"+itoa(org.ID)+"/voice-settings",
		map[string]string{"fallback_mode": "dispatcher_sip", "fallback_sip_username": "sip_dispatch"}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d %s", rr.Code, rr.Body.String())
	}

	rr = e.request(t, http.MethodGet, "/api/v1/organizations/"+itoa(org.ID)+"/voice-settings", nil, token)
	decodeData(t, rr, &vs)
	if vs.FallbackMode != models.FallbackModeDispatcherSIP || vs.FallbackSIPUsername != "sip_dispatch" {
		t.Errorf("settings = %+v, want dispatcher_sip/sip_dispatch", vs)
	}

	// dispatcher_sip without a username is rejected.
	rr = e.request(t, http.MethodPut, "/api/v1/organizations/"+itoa(org.ID)+"/voice-settings",
		map[string]string{"fallback_mode": "dispatcher_sip"}, token)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCallRecordsListAndExport(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Admin", "admin@example.com", "sip_admin", "correct horse battery")
	token := e.login(t, "admin@example.com", "correct horse battery")

	repo := database.NewCallRecordRepository(e.db)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, sid := range []string{"sid-a", "sid-b"} {
		rec := &models.CallRecord{
			Sid:           sid,
			Direction:     models.DirectionInbound,
			FromNumber:    "+14045550100",
			ToNumber:      "+16785550123",
			CallSessionID: "sess-" + sid,
			StartedAt:     started.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("creating record: %v", err)
		}
	}

	rr := e.request(t, http.MethodGet, "/api/v1/calls/records?direction=inbound", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var page struct {
		Items []callRecordResponse `json:"items"`
		Total int                  `json:"total"`
	}
	decodeData(t, rr, &page)
	if page.Total != 2 || len(page.Items) != 2 {
		t.Fatalf("expected 2 records, got total=%d items=%d", page.Total, len(page.Items))
	}

	rr = e.request(t, http.MethodGet, "/api/v1/calls/records?direction=sideways", nil, token)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad direction: expected 400, got %d", rr.Code)
	}

	rr = e.request(t, http.MethodGet, "/api/v1/calls/records/sid-a", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	rr = e.request(t, http.MethodGet, "/api/v1/calls/records/missing", nil, token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing: expected 404, got %d", rr.Code)
	}

	rr = e.request(t, http.MethodGet, "/api/v1/calls/records/export", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("export content-type = %q, want text/csv", ct)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 3 {
		t.Errorf("export lines = %d, want header + 2 rows", len(lines))
	}
}

func TestSyncRecordingEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Admin", "admin@example.com", "sip_admin", "correct horse battery")
	token := e.login(t, "admin@example.com", "correct horse battery")

	rr := e.request(t, http.MethodPost, "/api/v1/recordings/sync",
		map[string]any{"call_sid": "missing"}, token)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("unknown sid: expected 404, got %d", rr.Code)
	}

	repo := database.NewCallRecordRepository(e.db)
	rec := &models.CallRecord{
		Sid:           "sid-sync",
		Direction:     models.DirectionInbound,
		FromNumber:    "+14045550100",
		ToNumber:      "+16785550123",
		CallSessionID: "sess-sync",
		CallLegID:     "leg-sync",
		StartedAt:     time.Now().UTC().Add(-time.Hour),
	}
	if err := repo.Create(context.Background(), rec); err != nil {
		t.Fatalf("creating record: %v", err)
	}

	rr = e.request(t, http.MethodPost, "/api/v1/recordings/sync",
		map[string]any{"call_sid": "sid-sync"}, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	var result recordings.SyncResult
	decodeData(t, rr, &result)
	if result.Matched {
		t.Error("stub provider has no recordings; expected no match")
	}

	rr = e.request(t, http.MethodPut, "/api/v1/recordings/sync?hours=1&limit=10", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("batch: expected 200, got %d %s", rr.Code, rr.Body.String())
	}

	rr = e.request(t, http.MethodPut, "/api/v1/recordings/sync?hours=0", nil, token)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad hours: expected 400, got %d", rr.Code)
	}
}

func TestCallHistoryValidation(t *testing.T) {
	e := newTestEnv(t)
	e.createAgent(t, "Admin", "admin@example.com", "sip_admin", "correct horse battery")
	token := e.login(t, "admin@example.com", "correct horse battery")

	rr := e.request(t, http.MethodGet, "/api/v1/calls/history?number_a=abc&number_b=%2B16785550123", nil, token)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad number_a: expected 400, got %d", rr.Code)
	}

	rr = e.request(t, http.MethodGet,
		"/api/v1/calls/history?number_a=%2B14045550100&number_b=%2B16785550123", nil, token)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
