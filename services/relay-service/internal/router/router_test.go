package router

import (
	"encoding/json"
	"testing"
)

func always() float64 { return 0.0 }
func never() float64  { return 0.999999 }

func destinations(routes []Route) []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Destination)
	}
	return out
}

func TestResolve_PlainRoutingKey(t *testing.T) {
	r := New("default.events", always)
	routes := r.Resolve(Input{
		EventType:  "order.created",
		RoutingKey: "orders.events",
		Payload:    json.RawMessage(`{"total": 10}`),
	})
	if len(routes) != 1 || routes[0].Destination != "orders.events" {
		t.Fatalf("expected single route to orders.events, got %v", destinations(routes))
	}
	if string(routes[0].Payload) != `{"total": 10}` {
		t.Fatalf("payload must pass through unmodified, got %s", routes[0].Payload)
	}
}

func TestResolve_NoRoutingAtAll_DefaultDestination(t *testing.T) {
	r := New("default.events", always)
	routes := r.Resolve(Input{EventType: "order.created", Payload: json.RawMessage(`{}`)})
	if len(routes) != 1 || routes[0].Destination != "default.events" {
		t.Fatalf("expected default destination, got %v", destinations(routes))
	}
}

func TestResolve_ConditionThresholds(t *testing.T) {
	r := New("", always)
	cfg := json.RawMessage(`{
		"targets": [{"destination": "big", "conditions": {"payload.total": {"$gte": 500}}}],
		"fallback": "small"
	}`)

	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{"total": 501}`)})
	if len(routes) != 1 || routes[0].Destination != "big" {
		t.Fatalf("total=501 vs $gte:500 must match, got %v", destinations(routes))
	}

	cfgLT := json.RawMessage(`{
		"targets": [{"destination": "big", "conditions": {"payload.total": {"$lt": 500}}}],
		"fallback": "small"
	}`)
	routes = r.Resolve(Input{RoutingConfig: cfgLT, Payload: json.RawMessage(`{"total": 501}`)})
	if len(routes) != 1 || routes[0].Destination != "small" {
		t.Fatalf("total=501 vs $lt:500 must fall back, got %v", destinations(routes))
	}
}

func TestResolve_VIPScenario(t *testing.T) {
	r := New("", always)
	cfg := json.RawMessage(`{
		"targets": [{"destination": "vip", "conditions": {"payload.total": {"$gt": 1000}}}],
		"fallback": "default.events"
	}`)

	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{"total": 1500}`)})
	if len(routes) != 1 || routes[0].Destination != "vip" {
		t.Fatalf("total=1500 expected [vip], got %v", destinations(routes))
	}

	routes = r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{"total": 10}`)})
	if len(routes) != 1 || routes[0].Destination != "default.events" {
		t.Fatalf("total=10 expected [default.events], got %v", destinations(routes))
	}
}

func TestResolve_FanOut(t *testing.T) {
	r := New("", always)
	cfg := json.RawMessage(`{
		"targets": [
			{"destination": "audit", "sampling_rate": 1.0},
			{"destination": "analytics", "sampling_rate": 1.0}
		]
	}`)
	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{"a": 1}`)})
	if len(routes) != 2 || routes[0].Destination != "audit" || routes[1].Destination != "analytics" {
		t.Fatalf("expected fan-out to both targets, got %v", destinations(routes))
	}
}

func TestResolve_SamplingZeroFallsToFallback(t *testing.T) {
	r := New("", never)
	cfg := json.RawMessage(`{
		"targets": [{"destination": "sampled", "sampling_rate": 0.0}],
		"fallback": "everything"
	}`)
	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{}`)})
	if len(routes) != 1 || routes[0].Destination != "everything" {
		t.Fatalf("rate 0.0 must never fire, got %v", destinations(routes))
	}
}

func TestResolve_SamplingDrawDecides(t *testing.T) {
	cfg := json.RawMessage(`{
		"targets": [{"destination": "sampled", "sampling_rate": 0.5}]
	}`)

	hit := New("", func() float64 { return 0.4 })
	if routes := hit.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{}`)}); len(routes) != 1 {
		t.Fatalf("draw 0.4 < rate 0.5 must fire, got %v", destinations(routes))
	}

	miss := New("", func() float64 { return 0.6 })
	if routes := miss.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{}`)}); len(routes) != 0 {
		t.Fatalf("draw 0.6 >= rate 0.5 must not fire, got %v", destinations(routes))
	}
}

func TestResolve_MissingFieldSemantics(t *testing.T) {
	r := New("", always)

	cfgExists := json.RawMessage(`{
		"targets": [{"destination": "no-discount", "conditions": {"payload.discount": {"$exists": false}}}]
	}`)
	routes := r.Resolve(Input{RoutingConfig: cfgExists, Payload: json.RawMessage(`{"total": 5}`)})
	if len(routes) != 1 || routes[0].Destination != "no-discount" {
		t.Fatalf("missing field vs $exists:false must match, got %v", destinations(routes))
	}

	// A missing path fails every other operator, and equality.
	for _, cond := range []string{`{"$gt": 1}`, `{"$ne": 1}`, `{"$in": [1]}`, `7`} {
		cfg := json.RawMessage(`{
			"targets": [{"destination": "hit", "conditions": {"payload.missing.deep": ` + cond + `}}]
		}`)
		routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{"total": 5}`)})
		if len(routes) != 0 {
			t.Fatalf("missing path vs %s must not match", cond)
		}
	}
}

func TestResolve_OperatorGrid(t *testing.T) {
	r := New("", always)
	payload := json.RawMessage(`{"total": 500, "kind": "retail", "flags": {"vip": true}}`)

	cases := []struct {
		cond  string
		match bool
	}{
		{`{"payload.total": {"$gte": 500}}`, true},
		{`{"payload.total": {"$lte": 500}}`, true},
		{`{"payload.total": {"$gt": 500}}`, false},
		{`{"payload.total": {"$lt": 500}}`, false},
		{`{"payload.kind": {"$in": ["retail", "wholesale"]}}`, true},
		{`{"payload.kind": {"$in": ["wholesale"]}}`, false},
		{`{"payload.kind": {"$ne": "wholesale"}}`, true},
		{`{"payload.kind": {"$ne": "retail"}}`, false},
		{`{"payload.flags.vip": true}`, true},
		{`{"payload.flags.vip": {"$exists": true}}`, true},
		{`{"type": "order.created"}`, true},
		{`{"payload.total": {"$gte": 100}, "payload.kind": "retail"}`, true},
		{`{"payload.total": {"$gte": 100}, "payload.kind": "wholesale"}`, false},
	}
	for _, tc := range cases {
		cfg := json.RawMessage(`{"targets": [{"destination": "hit", "conditions": ` + tc.cond + `}]}`)
		routes := r.Resolve(Input{EventType: "order.created", RoutingConfig: cfg, Payload: payload})
		if (len(routes) == 1) != tc.match {
			t.Fatalf("conditions %s: expected match=%v, got %v", tc.cond, tc.match, destinations(routes))
		}
	}
}

func TestResolve_TransformOrder(t *testing.T) {
	r := New("", always)
	cfg := json.RawMessage(`{
		"targets": [{
			"destination": "slim",
			"transform": {
				"include": ["total", "secret", "customer"],
				"exclude": ["secret"],
				"rename": {"customer": "customer_id"},
				"add_fields": {"secret": "redacted", "version": 2}
			}
		}]
	}`)
	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(
		`{"total": 9, "secret": "s3cr3t", "customer": "c-1", "noise": true}`)})
	if len(routes) != 1 {
		t.Fatalf("expected one route, got %v", destinations(routes))
	}

	var doc map[string]any
	if err := json.Unmarshal(routes[0].Payload, &doc); err != nil {
		t.Fatalf("unmarshal transformed payload: %v", err)
	}
	if _, ok := doc["noise"]; ok {
		t.Fatalf("include filter must drop unlisted fields: %v", doc)
	}
	if _, ok := doc["customer"]; ok {
		t.Fatalf("rename must remove the old key: %v", doc)
	}
	if doc["customer_id"] != "c-1" {
		t.Fatalf("rename must carry the value, got %v", doc["customer_id"])
	}
	// Excluded then re-added: add_fields runs last.
	if doc["secret"] != "redacted" {
		t.Fatalf("add_fields must reintroduce excluded field, got %v", doc["secret"])
	}
	if doc["version"] != float64(2) {
		t.Fatalf("add_fields must add new fields, got %v", doc["version"])
	}
}

func TestResolve_TransformsAreIndependentCopies(t *testing.T) {
	r := New("", always)
	cfg := json.RawMessage(`{
		"targets": [
			{"destination": "full"},
			{"destination": "slim", "transform": {"exclude": ["secret"]}}
		]
	}`)
	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{"total": 1, "secret": "x"}`)})
	if len(routes) != 2 {
		t.Fatalf("expected two routes, got %v", destinations(routes))
	}
	var full map[string]any
	if err := json.Unmarshal(routes[0].Payload, &full); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := full["secret"]; !ok {
		t.Fatalf("untransformed copy must keep all fields: %v", full)
	}
	var slim map[string]any
	if err := json.Unmarshal(routes[1].Payload, &slim); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := slim["secret"]; ok {
		t.Fatalf("transformed copy must drop excluded field: %v", slim)
	}
}

func TestResolve_DelayAndRetryPolicyCarried(t *testing.T) {
	r := New("", always)
	cfg := json.RawMessage(`{
		"targets": [{"destination": "slow", "delay_ms": 5000, "retry_policy": "aggressive"}]
	}`)
	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{}`)})
	if len(routes) != 1 || routes[0].DelayMS != 5000 || routes[0].RetryPolicy != "aggressive" {
		t.Fatalf("delay/retry policy must be carried, got %+v", routes)
	}
}

func TestResolve_MalformedConfigFallsToSimpleMode(t *testing.T) {
	r := New("default.events", always)
	routes := r.Resolve(Input{
		RoutingKey:    "orders.events",
		RoutingConfig: json.RawMessage(`{"targets": "not-a-list"`),
		Payload:       json.RawMessage(`{}`),
	})
	if len(routes) != 1 || routes[0].Destination != "orders.events" {
		t.Fatalf("malformed config must fall to routing key, got %v", destinations(routes))
	}
}

func TestResolve_MalformedPayloadNeverMatchesConditions(t *testing.T) {
	r := New("", always)
	cfg := json.RawMessage(`{
		"targets": [{"destination": "hit", "conditions": {"payload.total": {"$gt": 1}}}],
		"fallback": "fallback"
	}`)
	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`not json`)})
	if len(routes) != 1 || routes[0].Destination != "fallback" {
		t.Fatalf("malformed payload must fall back, got %v", destinations(routes))
	}
}

func TestResolve_NoFallbackRoutesNowhere(t *testing.T) {
	r := New("default.events", always)
	cfg := json.RawMessage(`{
		"targets": [{"destination": "hit", "conditions": {"payload.total": {"$gt": 100}}}]
	}`)
	routes := r.Resolve(Input{RoutingConfig: cfg, Payload: json.RawMessage(`{"total": 1}`)})
	if len(routes) != 0 {
		t.Fatalf("config without fallback must route nowhere, got %v", destinations(routes))
	}
}
