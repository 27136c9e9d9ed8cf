package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// marshalStorage serializes a storage object to JSON for the instances
// table. Values are int64, string, or bool by the time they reach the
// store; encoding/json renders int64 without an exponent, so the roundtrip
// is lossless.
func marshalStorage(storage map[string]any) (string, error) {
	if storage == nil {
		storage = map[string]any{}
	}
	data, err := json.Marshal(storage)
	if err != nil {
		return "", fmt.Errorf("marshal storage: %w", err)
	}
	return string(data), nil
}

// unmarshalStorage deserializes a storage object from the instances table.
// Uses json.Number so integer fields come back as int64, not float64 -
// float64 silently corrupts values above 2^53.
func unmarshalStorage(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal storage: %w", err)
	}

	storage := make(map[string]any, len(raw))
	for k, v := range raw {
		if num, ok := v.(json.Number); ok {
			n, err := num.Int64()
			if err != nil {
				return nil, fmt.Errorf("unmarshal storage: field %q: %w", k, err)
			}
			storage[k] = n
			continue
		}
		storage[k] = v
	}
	return storage, nil
}
