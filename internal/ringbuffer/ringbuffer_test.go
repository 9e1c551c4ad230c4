package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBufferAppendTrimsOldest(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 4; i++ {
		b.Append(i)
	}
	assert.Equal(t, []int{2, 3, 4}, b.Items())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, 3, b.Cap())
}

func TestBufferItemsReturnsCopy(t *testing.T) {
	b := New[int](10)
	b.Append(1)
	b.Append(2)

	a := b.Items()
	a[0] = 999

	assert.Equal(t, 1, b.Items()[0])
}

func TestBufferClear(t *testing.T) {
	b := New[string](2)
	b.Append("a")
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Items())

	b.Append("b")
	assert.Equal(t, []string{"b"}, b.Items())
}

func TestBufferCapZeroRetainsNothing(t *testing.T) {
	b := New[int](0)
	b.Append(1)
	b.Append(2)
	assert.Equal(t, 0, b.Len())
}

func TestBufferLastAndReplace(t *testing.T) {
	b := New[int](4)
	b.Replace([]int{1, 2, 3, 4, 5, 6})
	assert.Equal(t, []int{3, 4, 5, 6}, b.Items())
	assert.Equal(t, []int{5, 6}, b.Last(2))
	assert.Equal(t, []int{3, 4, 5, 6}, b.Last(10))
	assert.Nil(t, b.Last(0))
}

func TestBufferKeepsNewestInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "cap")
		values := rapid.SliceOf(rapid.Int()).Draw(t, "values")

		b := New[int](capacity)
		for _, v := range values {
			b.Append(v)
			if b.Len() > capacity {
				t.Fatalf("len %d exceeds cap %d", b.Len(), capacity)
			}
		}

		want := values
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}
		got := b.Items()
		if len(got) != len(want) {
			t.Fatalf("len=%d want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got[%d]=%d want %d", i, got[i], want[i])
			}
		}
	})
}
