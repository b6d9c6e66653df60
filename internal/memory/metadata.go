package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMetadata is returned by Append for metadata that cannot be
// stored in a snapshot.
var ErrInvalidMetadata = errors.New("memory: invalid metadata")

// normalizeMetadata converts md to the values a snapshot decodes to, so a
// turn compares equal before and after a persist/load cycle. Integral
// numbers become int, other numbers float64, objects map[string]any and
// arrays []any.
func normalizeMetadata(md map[string]any) (map[string]any, error) {
	if len(md) == 0 {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return restoreNumbers(out).(map[string]any), nil
}

// restoreNumbers replaces json.Number values in v, recursively.
func restoreNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil && i >= math.MinInt && i <= math.MaxInt {
			return int(i)
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, val := range x {
			x[k] = restoreNumbers(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = restoreNumbers(val)
		}
		return x
	}
	return v
}

// decodeSnapshot parses data keeping integral metadata numbers as int.
func decodeSnapshot(data []byte) (snapshot, error) {
	var snap snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return snapshot{}, err
	}
	for i := range snap.Memories {
		if snap.Memories[i].Metadata == nil {
			snap.Memories[i].Metadata = map[string]any{}
			continue
		}
		restoreNumbers(snap.Memories[i].Metadata)
	}
	return snap, nil
}
