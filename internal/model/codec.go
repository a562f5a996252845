package model

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/pretty"
)

// Serialize renders the whole fleet as one indented JSON document keyed by worker name.
func Serialize(f *Fleet) ([]byte, error) {
	data, err := json.Marshal(f.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal fleet: %w", err)
	}
	return pretty.PrettyOptions(data, &pretty.Options{Width: 80, Indent: "    ", SortKeys: false}), nil
}

// Deserialize parses a document produced by Serialize.
// Malformed input, unknown statuses and empty names are errors.
func Deserialize(data []byte) (*Fleet, error) {
	raw := make(map[string]*Worker)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fleet: %w", err)
	}

	f := NewFleet()
	for name, w := range raw {
		if name == "" {
			return nil, fmt.Errorf("failed to unmarshal fleet: empty worker name")
		}
		if w == nil {
			return nil, fmt.Errorf("failed to unmarshal fleet: null record for %s", name)
		}
		if w.Status == "" {
			return nil, fmt.Errorf("failed to unmarshal fleet: missing status for %s", name)
		}
		w.Name = name
		f.workers[name] = w
	}
	return f, nil
}
