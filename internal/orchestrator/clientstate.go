package orchestrator

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ClientState is the opaque payload attached to outbound calls and echoed
// back by the provider on later webhook events. It carries the intended
// destination across the asynchronous answer/bridge boundary.
type ClientState struct {
	Dest     string `json:"dest"`
	From     string `json:"from"`
	AgentSIP string `json:"agent_sip,omitempty"`
}

// EncodeClientState serializes a ClientState for the provider's client_state
// field (base64-wrapped JSON).
func EncodeClientState(cs ClientState) (string, error) {
	raw, err := json.Marshal(cs)
	if err != nil {
		return "", fmt.Errorf("encoding client state: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeClientState parses a client_state value from a webhook payload.
// Returns nil, nil for an empty value; a malformed value is an error.
func DecodeClientState(encoded string) (*ClientState, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding client state: %w", err)
	}
	var cs ClientState
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("parsing client state: %w", err)
	}
	return &cs, nil
}
