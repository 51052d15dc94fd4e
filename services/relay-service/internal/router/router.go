// Package router resolves which destinations receive an outbox record.
// Producers attach either a plain routing key or a declarative rule set;
// the router evaluates rules against the record and returns independently
// shaped payload copies per destination. Resolution is pure: the only
// nondeterminism is the injected sampling source.
package router

import (
	"encoding/json"
	"math/rand"
)

// Config is the structured routing document carried on a record.
type Config struct {
	Targets  []Target `json:"targets"`
	Fallback string   `json:"fallback"`
}

// Target is one routing rule. It fires when every condition matches and
// the sampling draw succeeds; all firing targets route (fan-out, not
// first-match).
type Target struct {
	Destination  string                     `json:"destination"`
	Conditions   map[string]json.RawMessage `json:"conditions"`
	SamplingRate *float64                   `json:"sampling_rate"`
	Transform    *Transform                 `json:"transform"`
	DelayMS      int64                      `json:"delay_ms"`
	RetryPolicy  string                     `json:"retry_policy"`
}

// Route is one resolved delivery.
type Route struct {
	Destination string
	Payload     json.RawMessage
	DelayMS     int64
	RetryPolicy string
}

// Input is the routable view of an outbox record.
type Input struct {
	EventType     string
	RoutingKey    string
	RoutingConfig json.RawMessage
	Payload       json.RawMessage
}

type Router struct {
	defaultDestination string
	sample             func() float64
}

// New builds a router. sample is the sampling draw in [0,1); pass nil for
// math/rand, or a fixed source in tests.
func New(defaultDestination string, sample func() float64) *Router {
	if sample == nil {
		sample = rand.Float64
	}
	return &Router{defaultDestination: defaultDestination, sample: sample}
}

// Resolve maps one record to zero or more routes.
//
// Without a structured config, a plain routing key routes once to that key
// with the payload untouched, and a record with no routing at all goes to
// the default destination. With a config, every firing target routes; if
// none fire the record falls to the config's fallback, or nowhere.
func (r *Router) Resolve(in Input) []Route {
	cfg, ok := parseConfig(in.RoutingConfig)
	if !ok {
		return r.simpleRoute(in)
	}

	doc := conditionDocument(in)
	var routes []Route
	for _, tgt := range cfg.Targets {
		if tgt.Destination == "" {
			continue
		}
		if !matchAll(doc, tgt.Conditions) {
			continue
		}
		if tgt.SamplingRate != nil {
			rate := *tgt.SamplingRate
			if rate <= 0 {
				continue
			}
			if rate < 1 && r.sample() >= rate {
				continue
			}
		}
		routes = append(routes, Route{
			Destination: tgt.Destination,
			Payload:     applyTransform(in.Payload, tgt.Transform),
			DelayMS:     tgt.DelayMS,
			RetryPolicy: tgt.RetryPolicy,
		})
	}
	if len(routes) == 0 {
		if cfg.Fallback != "" {
			return []Route{{Destination: cfg.Fallback, Payload: in.Payload}}
		}
		return nil
	}
	return routes
}

func (r *Router) simpleRoute(in Input) []Route {
	if in.RoutingKey != "" {
		return []Route{{Destination: in.RoutingKey, Payload: in.Payload}}
	}
	if r.defaultDestination != "" {
		return []Route{{Destination: r.defaultDestination, Payload: in.Payload}}
	}
	return nil
}

// parseConfig reports ok only for a usable structured config; a missing or
// malformed document drops the record back to simple routing.
func parseConfig(raw json.RawMessage) (Config, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return Config{}, false
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, false
	}
	if len(cfg.Targets) == 0 && cfg.Fallback == "" {
		return Config{}, false
	}
	return cfg, true
}

// conditionDocument is what dot-paths resolve against: the decoded payload
// under "payload", plus the record's type and routing key.
func conditionDocument(in Input) map[string]any {
	doc := map[string]any{
		"type":        in.EventType,
		"routing_key": in.RoutingKey,
	}
	var payload any
	if err := json.Unmarshal(in.Payload, &payload); err == nil {
		doc["payload"] = payload
	}
	return doc
}
