package document

import (
	"encoding/json"
	"fmt"
)

// Encode wraps a document value in its self-describing envelope and
// marshals it to JSON (spec.md §6.1).
func Encode(kind Kind, v interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Kind: kind, Payload: v})
}

// Decode reads an envelope and returns the kind plus a concrete decoded
// document value. Round-tripping Encode then Decode must be the identity
// for every document kind (spec.md §8).
func Decode(b []byte) (Kind, interface{}, error) {
	var raw struct {
		Kind    Kind            `json:"kind"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return "", nil, fmt.Errorf("document: decode envelope: %w", err)
	}
	var v interface{}
	switch raw.Kind {
	case KindStart:
		var d Start
		v = &d
	case KindManifest:
		var d Manifest
		v = &d
	case KindDescriptor:
		var d Descriptor
		v = &d
	case KindEvent:
		var d Event
		v = &d
	case KindStop:
		var d Stop
		v = &d
	default:
		return "", nil, fmt.Errorf("document: unknown kind %q", raw.Kind)
	}
	if err := json.Unmarshal(raw.Payload, v); err != nil {
		return "", nil, fmt.Errorf("document: decode payload: %w", err)
	}
	return raw.Kind, v, nil
}
