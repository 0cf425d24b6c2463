package transform

import (
	"encoding/hex"
	"fmt"
	"strconv"
)

// bytesParam reads name as raw text or name+"_hex" as hex. Missing both
// returns ok=false.
func bytesParam(params map[string]interface{}, name string) ([]byte, bool, error) {
	if v, ok := params[name+"_hex"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, false, fmt.Errorf("parameter %s_hex must be a string", name)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, false, fmt.Errorf("parameter %s_hex: %w", name, err)
		}
		return b, true, nil
	}
	if v, ok := params[name]; ok {
		switch s := v.(type) {
		case string:
			return []byte(s), true, nil
		case []byte:
			return s, true, nil
		}
		return nil, false, fmt.Errorf("parameter %s must be a string", name)
	}
	return nil, false, nil
}

func requiredBytes(params map[string]interface{}, name string) ([]byte, error) {
	b, ok, err := bytesParam(params, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("missing parameter %s (or %s_hex)", name, name)
	}
	return b, nil
}

func intParam(params map[string]interface{}, name string, def int) (int, error) {
	v, ok := params[name]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parameter %s: %w", name, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("parameter %s must be a number", name)
}

func boolParam(params map[string]interface{}, name string) (bool, error) {
	v, ok := params[name]
	if !ok {
		return false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, fmt.Errorf("parameter %s: %w", name, err)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("parameter %s must be a boolean", name)
}
