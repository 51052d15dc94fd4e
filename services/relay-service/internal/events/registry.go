// Package events maps event type names to payload constructors so the
// projector and consumers can work with typed events without reflection.
package events

import (
	"encoding/json"
	"sync"
)

// Decoder builds a typed event from its raw payload.
type Decoder func(json.RawMessage) (any, error)

// RawEvent is the fallback for event types nobody registered: the payload
// passes through untouched instead of failing the relay.
type RawEvent struct {
	Type string
	Data json.RawMessage
}

type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register binds a decoder to an event type. Last registration wins;
// call during startup, before any decoding.
func (r *Registry) Register(eventType string, dec Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[eventType] = dec
}

// Decode constructs the typed event for a payload. Unknown types return a
// RawEvent; only a registered decoder rejecting its payload is an error.
func (r *Registry) Decode(eventType string, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	dec, ok := r.decoders[eventType]
	r.mu.RUnlock()
	if !ok {
		return RawEvent{Type: eventType, Data: payload}, nil
	}
	return dec(payload)
}

// DecodeInto is a convenience Decoder for plain struct payloads.
func DecodeInto[T any]() Decoder {
	return func(raw json.RawMessage) (any, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
