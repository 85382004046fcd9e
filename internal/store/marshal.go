package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/wpedit/internal/ir"
)

// marshalFields converts a field object to canonical JSON TEXT for storage.
func marshalFields(fields ir.Object) (string, error) {
	if fields == nil {
		fields = ir.Object{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses stored field JSON. Integers beyond 2^53 survive
// because ir.Object decodes numbers as json.Number.
func unmarshalFields(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

// marshalChanged stores the changed field names as a sorted JSON array.
func marshalChanged(changes ir.Object) (string, error) {
	names := changes.SortedKeys()
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(names)
	if err != nil {
		return "", fmt.Errorf("marshal changed: %w", err)
	}
	return string(data), nil
}

func unmarshalChanged(data string) ([]string, error) {
	var names []string
	if err := json.Unmarshal([]byte(data), &names); err != nil {
		return nil, fmt.Errorf("unmarshal changed: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}
