package router

import "encoding/json"

// Transform reshapes a payload copy for one destination. Steps apply in a
// fixed order: include filter, exclude filter, rename, add fields — so an
// excluded field can be deliberately reintroduced via AddFields.
type Transform struct {
	Include   []string          `json:"include"`
	Exclude   []string          `json:"exclude"`
	Rename    map[string]string `json:"rename"`
	AddFields map[string]any    `json:"add_fields"`
}

// applyTransform returns a transformed copy of the payload. Non-object
// payloads and marshal failures pass through untouched; the router never
// loses an event to a bad transform.
func applyTransform(payload json.RawMessage, t *Transform) json.RawMessage {
	if t == nil {
		return payload
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return payload
	}

	if len(t.Include) > 0 {
		kept := make(map[string]any, len(t.Include))
		for _, key := range t.Include {
			if v, ok := doc[key]; ok {
				kept[key] = v
			}
		}
		doc = kept
	}
	for _, key := range t.Exclude {
		delete(doc, key)
	}
	for from, to := range t.Rename {
		if v, ok := doc[from]; ok {
			delete(doc, from)
			doc[to] = v
		}
	}
	for key, v := range t.AddFields {
		doc[key] = v
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return payload
	}
	return out
}
