package telnyx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnswerSendsCommand(t *testing.T) {
	var gotMethod, gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"result":"ok"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key-123")
	if err := client.Answer(context.Background(), "cc-1"); err != nil {
		t.Fatalf("Answer() error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotPath != "/calls/cc-1/actions/answer" {
		t.Errorf("path = %q, want /calls/cc-1/actions/answer", gotPath)
	}
	if gotAuth != "Bearer key-123" {
		t.Errorf("authorization = %q, want Bearer key-123", gotAuth)
	}
}

func TestTransferIncludesClientState(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		fmt.Fprint(w, `{"data":{"result":"ok"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key")
	if err := client.Transfer(context.Background(), "cc-1", "sip:agent@sip.telnyx.com", "c3RhdGU="); err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}

	if gotBody["to"] != "sip:agent@sip.telnyx.com" {
		t.Errorf("to = %v, want sip:agent@sip.telnyx.com", gotBody["to"])
	}
	if gotBody["client_state"] != "c3RhdGU=" {
		t.Errorf("client_state = %v, want c3RhdGU=", gotBody["client_state"])
	}
}

func TestTransferOmitsEmptyClientState(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		fmt.Fprint(w, `{"data":{"result":"ok"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key")
	if err := client.Transfer(context.Background(), "cc-1", "+15550001111", ""); err != nil {
		t.Fatalf("Transfer() error: %v", err)
	}

	if _, ok := gotBody["client_state"]; ok {
		t.Error("empty client_state was sent")
	}
}

func TestDialDecodesCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calls" {
			t.Errorf("path = %q, want /calls", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":{"call_control_id":"cc-9","call_session_id":"cs-9","call_leg_id":"cl-9","is_alive":true,"record_type":"call"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key")
	call, err := client.Dial(context.Background(), DialRequest{
		To:           "sip:agent@sip.telnyx.com",
		From:         "+15550001111",
		ConnectionID: "conn-1",
	})
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}

	if call.CallControlID != "cc-9" {
		t.Errorf("call control id = %q, want cc-9", call.CallControlID)
	}
	if call.CallSessionID != "cs-9" {
		t.Errorf("call session id = %q, want cs-9", call.CallSessionID)
	}
	if !call.IsAlive {
		t.Error("is_alive = false, want true")
	}
}

func TestAPIErrorStatusAndDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"errors":[{"code":"90010","title":"Invalid destination","detail":"destination not reachable"}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key")
	err := client.Transfer(context.Background(), "cc-1", "sip:nobody@example.com", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsStatus(err, http.StatusUnprocessableEntity) {
		t.Errorf("IsStatus(err, 422) = false, err = %v", err)
	}
	if IsStatus(err, http.StatusNotFound) {
		t.Error("IsStatus(err, 404) = true for a 422")
	}
}

func TestGetConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/connections/conn-1" {
			t.Errorf("path = %q, want /connections/conn-1", r.URL.Path)
		}
		fmt.Fprint(w, `{"data":{"id":"conn-1","connection_name":"prod sip","outbound_voice_profile_id":"ovp-1"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "key")
	conn, err := client.GetConnection(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("GetConnection() error: %v", err)
	}
	if conn.OutboundVoiceProfileID != "ovp-1" {
		t.Errorf("outbound voice profile = %q, want ovp-1", conn.OutboundVoiceProfileID)
	}
}

func TestConfigured(t *testing.T) {
	if !NewClient("https://api.example.com/v2", "key").Configured() {
		t.Error("client with base URL and key reports unconfigured")
	}
	if NewClient("https://api.example.com/v2", "").Configured() {
		t.Error("client without key reports configured")
	}
	if NewClient("", "key").Configured() {
		t.Error("client without base URL reports configured")
	}
}
