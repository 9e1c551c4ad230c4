package types

import "sort"

// DatabaseMetrics is the canonical engine metrics shape. Adapters for the
// different database engines report the same concept under different keys;
// the aliases are resolved here and nowhere else.
type DatabaseMetrics struct {
	ActiveConnections  float64            `json:"activeConnections"`
	BufferPoolHitRatio float64            `json:"bufferPoolHitRatio"`
	LockWaits          float64            `json:"lockWaits"`
	SlowQueries        float64            `json:"slowQueries"`
	Extra              map[string]float64 `json:"-"`
}

var databaseAliases = map[string][]string{
	"activeConnections":  {"active_connections", "activeConnections"},
	"bufferPoolHitRatio": {"buffer_pool_hit_ratio", "cache_hit_ratio", "bufferPoolHitRatio"},
	"lockWaits":          {"row_lock_waits", "waiting_locks", "lock_waits", "lockWaits"},
	"slowQueries":        {"slow_queries", "slowQueries"},
}

// UnmarshalJSON resolves the engine-specific key aliases.
func (m *DatabaseMetrics) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = DatabaseMetricsFromMap(raw)
	return nil
}

// MarshalJSON writes the canonical keys with the engine-specific extras
// flattened beside them, so the output decodes back to the same value.
func (m DatabaseMetrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]float64, len(m.Extra)+4)
	for k, v := range m.Extra {
		out[k] = v
	}
	out["activeConnections"] = m.ActiveConnections
	out["bufferPoolHitRatio"] = m.BufferPoolHitRatio
	out["lockWaits"] = m.LockWaits
	out["slowQueries"] = m.SlowQueries
	return Marshal(out)
}

// DatabaseMetricsFromMap builds the canonical shape from a decoded object.
func DatabaseMetricsFromMap(raw map[string]any) DatabaseMetrics {
	var m DatabaseMetrics
	consumed := make(map[string]bool)

	pick := func(canonical string) float64 {
		var out float64
		found := false
		for _, key := range databaseAliases[canonical] {
			v, ok := raw[key]
			if !ok {
				continue
			}
			consumed[key] = true
			f, ok := toFloat(v)
			if !ok || found {
				continue
			}
			// first non-zero alias wins, matching how the backends populate them
			if f != 0 {
				out = f
				found = true
			}
		}
		return out
	}

	m.ActiveConnections = pick("activeConnections")
	m.BufferPoolHitRatio = pick("bufferPoolHitRatio")
	m.LockWaits = pick("lockWaits")
	m.SlowQueries = pick("slowQueries")

	for k, v := range raw {
		if consumed[k] {
			continue
		}
		if f, ok := toFloat(v); ok {
			if m.Extra == nil {
				m.Extra = make(map[string]float64)
			}
			m.Extra[k] = f
		}
	}
	return m
}

// ExtraKeys returns the engine-specific metric names in stable order.
func (m DatabaseMetrics) ExtraKeys() []string {
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
