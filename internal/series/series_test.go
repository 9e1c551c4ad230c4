package series

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/yzsind/dbbench/pkg/types"
)

func TestBuffer_PushEvictsOldest(t *testing.T) {
	b := New(DefaultCapacity)
	for i := 0; i < 61; i++ {
		b.Push(types.SeriesTPS, strconv.Itoa(i), float64(i))
	}

	points := b.Snapshot(types.SeriesTPS)
	require.Len(t, points, 60)
	assert.Equal(t, "1", points[0].Label)
	assert.Equal(t, float64(60), points[59].Value)
}

func TestBuffer_SnapshotDoesNotMutate(t *testing.T) {
	b := New(3)
	b.Push("a", "l1", 1)

	snap := b.Snapshot("a")
	snap[0].Value = 42

	assert.Equal(t, float64(1), b.Snapshot("a")[0].Value)
	assert.Empty(t, b.Snapshot("unknown"))
}

func TestBuffer_ResetAndNames(t *testing.T) {
	b := New(5)
	b.Push("b", "x", 1)
	b.Push("a", "x", 2)
	assert.Equal(t, []string{"a", "b"}, b.Names())

	b.Reset("a")
	assert.Empty(t, b.Snapshot("a"))
	assert.Len(t, b.Snapshot("b"), 1)

	b.ResetAll()
	assert.Empty(t, b.Snapshot("b"))

	latest, ok := b.Latest("b")
	assert.False(t, ok)
	assert.Zero(t, latest)
}

func TestBuffer_NotifiesAfterEveryMutation(t *testing.T) {
	b := New(2)
	var got []string
	b.Subscribe(func(name string, points []types.ChannelSample) {
		got = append(got, fmt.Sprintf("%s:%d", name, len(points)))
	})

	b.Push("tps", "t1", 1)
	b.Push("tps", "t2", 2)
	b.Push("tps", "t3", 3)
	b.Reset("tps")

	assert.Equal(t, []string{"tps:1", "tps:2", "tps:2", "tps:0"}, got)
}

func TestBuffer_ListenerGetsCopy(t *testing.T) {
	b := New(2)
	b.Subscribe(func(_ string, points []types.ChannelSample) {
		points[0].Value = -1
	})
	b.Push("tps", "t1", 7)

	latest, ok := b.Latest("tps")
	require.True(t, ok)
	assert.Equal(t, float64(7), latest.Value)
}

func TestBuffer_Replace(t *testing.T) {
	b := New(3)
	var calls int
	b.Subscribe(func(_ string, points []types.ChannelSample) { calls++ })
	b.Push("tps", "old", 1)

	b.Replace("tps", []types.ChannelSample{{Label: "a", Value: 1}, {Label: "b", Value: 2}, {Label: "c", Value: 3}, {Label: "d", Value: 4}})

	assert.Equal(t, 2, calls)
	points := b.Snapshot("tps")
	require.Len(t, points, 3)
	assert.Equal(t, "b", points[0].Label)
	assert.Equal(t, "d", points[2].Label)
}

func TestBuffer_HoldsMostRecentInPushOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOf(rapid.Float64()).Draw(t, "values")
		b := New(DefaultCapacity)
		for i, v := range values {
			b.Push("s", strconv.Itoa(i), v)
			if n := len(b.Snapshot("s")); n > DefaultCapacity {
				t.Fatalf("series length %d exceeds capacity", n)
			}
		}

		start := 0
		if len(values) > DefaultCapacity {
			start = len(values) - DefaultCapacity
		}
		points := b.Snapshot("s")
		if len(points) != len(values)-start {
			t.Fatalf("len=%d want %d", len(points), len(values)-start)
		}
		for i, p := range points {
			if p.Label != strconv.Itoa(start+i) {
				t.Fatalf("points[%d] label %s want %d", i, p.Label, start+i)
			}
		}
	})
}
