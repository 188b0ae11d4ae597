package mqtt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// ValueMessage is the payload of attribute and setting topics.
type ValueMessage struct {
	Value any `json:"value"`
}

// EncodeValue marshals v as {"value": v}.
func EncodeValue(v any) ([]byte, error) {
	data, err := json.Marshal(ValueMessage{Value: v})
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return data, nil
}

// DecodeString extracts a string from a write payload. Both
// {"value":"text"} and a bare text payload are accepted.
func DecodeString(payload []byte) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	if trimmed[0] != '{' {
		return string(trimmed), nil
	}

	var msg struct {
		Value *string `json:"value"`
	}
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if msg.Value == nil {
		return "", fmt.Errorf("%w: missing string \"value\"", ErrInvalidPayload)
	}
	return *msg.Value, nil
}

// StatusMessage is the payload of the system status topic.
type StatusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func buildStatusPayload(status, clientID, reason string) string {
	data, err := json.Marshal(StatusMessage{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, status)
	}
	return string(data)
}
