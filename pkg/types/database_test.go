package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseMetrics_Aliases(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want DatabaseMetrics
	}{
		{
			name: "mysql",
			raw:  `{"active_connections":12,"buffer_pool_hit_ratio":99.5,"row_lock_waits":3,"slow_queries":1}`,
			want: DatabaseMetrics{ActiveConnections: 12, BufferPoolHitRatio: 99.5, LockWaits: 3, SlowQueries: 1},
		},
		{
			name: "postgres",
			raw:  `{"activeConnections":8,"cache_hit_ratio":97,"waiting_locks":2}`,
			want: DatabaseMetrics{ActiveConnections: 8, BufferPoolHitRatio: 97, LockWaits: 2},
		},
		{
			name: "first non-zero alias wins",
			raw:  `{"active_connections":0,"activeConnections":5,"lock_waits":4}`,
			want: DatabaseMetrics{ActiveConnections: 5, LockWaits: 4},
		},
		{
			name: "extras",
			raw:  `{"active_connections":1,"qps":250,"engine":"innodb"}`,
			want: DatabaseMetrics{ActiveConnections: 1, Extra: map[string]float64{"qps": 250}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got DatabaseMetrics
			require.NoError(t, Unmarshal([]byte(tt.raw), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDatabaseMetrics_MarshalRoundTrip(t *testing.T) {
	in := DatabaseMetrics{ActiveConnections: 3, LockWaits: 1, Extra: map[string]float64{"tps_commit": 9, "a": 1}}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out DatabaseMetrics
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
	assert.Equal(t, []string{"a", "tps_commit"}, out.ExtraKeys())
}
