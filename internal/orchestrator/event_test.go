package orchestrator

import "testing"

func TestParseEvent(t *testing.T) {
	body := []byte(`{
		"data": {
			"event_type": "call.initiated",
			"occurred_at": "2026-03-01T12:00:00Z",
			"payload": {
				"call_control_id": "cc-1",
				"call_session_id": "sess-1",
				"call_leg_id": "leg-1",
				"direction": "incoming",
				"from": "+14045550100",
				"to": "+15550001111"
			}
		}
	}`)

	ev, err := ParseEvent(body)
	if err != nil {
		t.Fatalf("ParseEvent() error: %v", err)
	}
	if ev.EventType != EventCallInitiated {
		t.Errorf("event type = %q, want call.initiated", ev.EventType)
	}
	if ev.Payload.CallControlID != "cc-1" || ev.Payload.Direction != "incoming" {
		t.Errorf("payload = %+v", ev.Payload)
	}
}

func TestParseEventRejectsGarbage(t *testing.T) {
	if _, err := ParseEvent([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseEvent([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for missing event type")
	}
}

func TestClientStateRoundTrip(t *testing.T) {
	encoded, err := EncodeClientState(ClientState{
		Dest:     "+16785550123",
		From:     "+15550009999",
		AgentSIP: "sip_a1",
	})
	if err != nil {
		t.Fatalf("EncodeClientState() error: %v", err)
	}

	cs, err := DecodeClientState(encoded)
	if err != nil {
		t.Fatalf("DecodeClientState() error: %v", err)
	}
	if cs.Dest != "+16785550123" || cs.From != "+15550009999" || cs.AgentSIP != "sip_a1" {
		t.Errorf("decoded state = %+v", cs)
	}
}

func TestDecodeClientStateEmpty(t *testing.T) {
	cs, err := DecodeClientState("")
	if err != nil {
		t.Fatalf("DecodeClientState(\"\") error: %v", err)
	}
	if cs != nil {
		t.Errorf("decoded state = %+v, want nil", cs)
	}
}

func TestDecodeClientStateMalformed(t *testing.T) {
	if _, err := DecodeClientState("%%%not-base64%%%"); err == nil {
		t.Error("expected error for invalid base64")
	}
	if _, err := DecodeClientState("bm90IGpzb24="); err == nil {
		t.Error("expected error for non-JSON payload")
	}
}
