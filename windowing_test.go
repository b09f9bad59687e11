package fluxq_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synoptiq/go-fluxq"
)

// Helper function to run a windowing query in both push and pull mode and
// check that they agree.
func runWindowTest[T any](t *testing.T, q fluxq.Consumable[[]T]) [][]T {
	t.Helper()
	pushed := collect(t, q)
	pulled := drain(t, q.Iterator())
	require.Equal(t, pushed, pulled, "push and pull runs must agree")
	return pushed
}

func TestChunkBasic(t *testing.T) {
	got := runWindowTest(t, fluxq.Chunk(fluxq.Range(1, 7), 3))
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, got)
}

func TestChunkExactMultiple(t *testing.T) {
	got := runWindowTest(t, fluxq.Chunk(fluxq.Range(1, 6), 2))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5, 6}}, got)
}

func TestChunkEmptyInput(t *testing.T) {
	got := runWindowTest(t, fluxq.Chunk(fluxq.Where(fluxq.Range(0, 5), func(int) bool { return false }), 2))
	assert.Empty(t, got)
}

func TestChunkSizeOne(t *testing.T) {
	got := runWindowTest(t, fluxq.Chunk(fluxq.FromSlice([]string{"a", "b"}), 1))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, got)
}

func TestChunksAreIndependent(t *testing.T) {
	got := collect(t, fluxq.Chunk(fluxq.Range(0, 4), 2))
	got[0][0] = 99
	assert.Equal(t, []int{2, 3}, got[1])
}

func TestChunkWithTake(t *testing.T) {
	got := runWindowTest(t, fluxq.Take(fluxq.Chunk(fluxq.Range(0, 5), 2), 2))
	assert.Equal(t, [][]int{{0, 1}, {2, 3}}, got)

	first, err := fluxq.First(fluxq.Chunk(fluxq.Range(0, 3), 2))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, first)
}

func TestChunkInvalidSize(t *testing.T) {
	assert.PanicsWithValue(t, "fluxq.NewChunkLink: size must be positive, got 0", func() {
		fluxq.Chunk(fluxq.Range(0, 3), 0)
	})
}

func TestWindowBasic(t *testing.T) {
	got := runWindowTest(t, fluxq.Window(fluxq.Range(1, 5), 3, 1))
	assert.Equal(t, [][]int{{1, 2, 3}, {2, 3, 4}, {3, 4, 5}}, got)
}

func TestWindowTumbling(t *testing.T) {
	got := runWindowTest(t, fluxq.Window(fluxq.Range(1, 7), 2, 2))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5, 6}}, got, "partial windows are never emitted")
}

func TestWindowSlideGreaterThanSize(t *testing.T) {
	got := runWindowTest(t, fluxq.Window(fluxq.Range(1, 9), 2, 3))
	assert.Equal(t, [][]int{{2, 3}, {5, 6}, {8, 9}}, got)
}

func TestWindowNotEnoughForFirstWindow(t *testing.T) {
	got := runWindowTest(t, fluxq.Window(fluxq.Range(1, 2), 3, 1))
	assert.Empty(t, got)
}

func TestWindowInvalidParams(t *testing.T) {
	assert.Panics(t, func() { fluxq.Window(fluxq.Range(0, 3), 0, 1) })
	assert.Panics(t, func() { fluxq.Window(fluxq.Range(0, 3), 2, 0) })
}

func TestSkipLast(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, collect(t, fluxq.SkipLast(fluxq.Range(0, 5), 2)))
	assert.Empty(t, collect(t, fluxq.SkipLast(fluxq.Range(0, 2), 5)))
	assert.Empty(t, collect(t, fluxq.SkipLast(fluxq.Range(0, 2), math.MaxInt)))

	src := fluxq.Range(0, 3)
	assert.Same(t, src, fluxq.SkipLast(src, 0))
}

func TestTakeLast(t *testing.T) {
	assert.Equal(t, []int{3, 4}, collect(t, fluxq.TakeLast(fluxq.Range(0, 5), 2)))
	assert.Equal(t, []int{0, 1}, collect(t, fluxq.TakeLast(fluxq.Range(0, 2), 5)))
	assert.Equal(t, fluxq.Empty[int](), fluxq.TakeLast(fluxq.Range(0, 5), 0))
	assert.Equal(t, []int{0, 1, 2}, collect(t, fluxq.TakeLast(fluxq.Range(0, 3), math.MaxInt)))

	// Downstream stops are honoured while flushing.
	got := collect(t, fluxq.Take(fluxq.TakeLast(fluxq.Range(0, 10), 4), 2))
	assert.Equal(t, []int{6, 7}, got)
}

func runChunkBench(b *testing.B, size, numItems int) {
	q := fluxq.Chunk(fluxq.Range(0, numItems), size)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := fluxq.Count(q); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkChunk(b *testing.B) {
	for _, size := range []int{1, 16, 256} {
		b.Run(fmt.Sprintf("Size%d", size), func(b *testing.B) {
			runChunkBench(b, size, 10_000)
		})
	}
}

func BenchmarkWindow(b *testing.B) {
	for _, slide := range []int{1, 8, 32} {
		b.Run(fmt.Sprintf("Slide%d", slide), func(b *testing.B) {
			q := fluxq.Window(fluxq.Range(0, 10_000), 32, slide)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = fluxq.Count(q)
			}
		})
	}
}
