package core

import "encoding/json"

// Message is the wire envelope for every signal event, inbound and outbound.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewFrame encodes an event and its payload into a send-ready frame.
func NewFrame(event string, payload any) (Frame, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	b, err := json.Marshal(Message{Type: event, Payload: raw})
	if err != nil {
		return nil, err
	}
	return Frame(b), nil
}
