package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned when an envelope names a tag outside the
	// closed variant set.
	ErrUnknownType = errors.New("unknown message type")
)

// envelope is the self-describing serialization of one tagged message.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeClient serializes a client message into envelope bytes.
func EncodeClient(m ClientMessage) ([]byte, error) {
	return encode(m.Type(), m)
}

// EncodeServer serializes a server message into envelope bytes.
func EncodeServer(m ServerMessage) ([]byte, error) {
	return encode(m.Type(), m)
}

// DecodeClient parses envelope bytes into a client message.
func DecodeClient(data []byte) (ClientMessage, error) {
	return decode(data, clientFactories)
}

// DecodeServer parses envelope bytes into a server message.
func DecodeServer(data []byte) (ServerMessage, error) {
	return decode(data, serverFactories)
}

func encode(tag string, m any) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", tag, err)
	}
	return json.Marshal(envelope{Type: tag, Data: data})
}

func decode[M any](data []byte, factories map[string]func() M) (M, error) {
	var zero M
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return zero, fmt.Errorf("decode envelope: %w", err)
	}
	factory, ok := factories[env.Type]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	m := factory()
	if err := json.Unmarshal(env.Data, m); err != nil {
		return zero, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return m, nil
}
