package types

import (
	"github.com/bytedance/sonic"
)

// Unmarshal decodes JSON with sonic, the codec used across the console.
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// Marshal encodes v with sonic.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// toFloat converts a decoded JSON scalar to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
