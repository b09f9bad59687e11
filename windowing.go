package fluxq

import "fmt"

// ringBuffer keeps the most recent items up to a fixed capacity. Storage
// grows on demand, so a large capacity costs nothing until it is used.
type ringBuffer[T any] struct {
	items    []T
	capacity int
	start    int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	return &ringBuffer[T]{items: make([]T, 0, min(capacity, 64)), capacity: capacity}
}

// push appends v. When the buffer is full the oldest item is evicted and
// returned with evicted set to true.
func (r *ringBuffer[T]) push(v T) (old T, evicted bool) {
	if len(r.items) < r.capacity {
		r.items = append(r.items, v)
		return old, false
	}
	old = r.items[r.start]
	r.items[r.start] = v
	r.start = (r.start + 1) % r.capacity
	return old, true
}

func (r *ringBuffer[T]) full() bool {
	return len(r.items) == r.capacity
}

// snapshot returns a copy of the buffered items, oldest first.
func (r *ringBuffer[T]) snapshot() []T {
	out := make([]T, len(r.items))
	n := copy(out, r.items[r.start:])
	copy(out[n:], r.items[:r.start])
	return out
}

// ChunkLink groups consecutive items into slices of Size. The last chunk may
// be shorter; it is emitted when the input completes.
type ChunkLink[T any] struct {
	Size int
}

// NewChunkLink creates a ChunkLink.
// Panics if size is not positive.
func NewChunkLink[T any](size int) *ChunkLink[T] {
	if size <= 0 {
		panic(fmt.Sprintf("fluxq.NewChunkLink: size must be positive, got %d", size))
	}
	return &ChunkLink[T]{Size: size}
}

// Compose implements the Link interface for ChunkLink.
func (l *ChunkLink[T]) Compose(next Chain[[]T]) Chain[T] {
	return &chunkActivity[T]{
		Activity: NewActivity(next),
		size:     l.Size,
		buffer:   make([]T, 0, l.Size),
	}
}

type chunkActivity[T any] struct {
	Activity[[]T]
	size    int
	buffer  []T
	stopped bool
}

func (a *chunkActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	a.buffer = append(a.buffer, item)
	if len(a.buffer) < a.size {
		return Filter, nil
	}
	chunk := a.buffer
	a.buffer = make([]T, 0, a.size)
	status, err := a.Next(chunk)
	a.stopped = status.IsStopped()
	return status, err
}

func (a *chunkActivity[T]) ChainComplete() error {
	if len(a.buffer) > 0 && !a.stopped {
		chunk := a.buffer
		a.buffer = nil
		if _, err := a.Next(chunk); err != nil {
			return err
		}
	}
	return a.Activity.ChainComplete()
}

// WindowLink emits a copy of the last Size items every Slide items, once at
// least Size items have been seen. Partial windows are never emitted.
type WindowLink[T any] struct {
	Size  int
	Slide int
}

// NewWindowLink creates a WindowLink.
// Panics if size or slide are not positive.
func NewWindowLink[T any](size, slide int) *WindowLink[T] {
	if size <= 0 {
		panic(fmt.Sprintf("fluxq.NewWindowLink: size must be positive, got %d", size))
	}
	if slide <= 0 {
		panic(fmt.Sprintf("fluxq.NewWindowLink: slide must be positive, got %d", slide))
	}
	return &WindowLink[T]{Size: size, Slide: slide}
}

// Compose implements the Link interface for WindowLink.
func (l *WindowLink[T]) Compose(next Chain[[]T]) Chain[T] {
	return &windowActivity[T]{
		Activity: NewActivity(next),
		slide:    l.Slide,
		ring:     newRingBuffer[T](l.Size),
	}
}

type windowActivity[T any] struct {
	Activity[[]T]
	slide int
	count int
	ring  *ringBuffer[T]
}

func (a *windowActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	a.ring.push(item)
	a.count++
	if a.count < a.slide {
		return Filter, nil
	}
	a.count = 0
	if !a.ring.full() {
		return Filter, nil
	}
	return a.Next(a.ring.snapshot())
}

// SkipLastLink drops the final Count items by holding Count items back.
type SkipLastLink[T any] struct {
	Count int
}

// Compose implements the Link interface for SkipLastLink.
func (l *SkipLastLink[T]) Compose(next Chain[T]) Chain[T] {
	return &skipLastActivity[T]{Activity: NewActivity(next), ring: newRingBuffer[T](l.Count)}
}

type skipLastActivity[T any] struct {
	Activity[T]
	ring *ringBuffer[T]
}

func (a *skipLastActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	old, evicted := a.ring.push(item)
	if !evicted {
		return Filter, nil
	}
	return a.Next(old)
}

// TakeLastLink keeps the final Count items and emits them when the input
// completes.
type TakeLastLink[T any] struct {
	Count int
}

// Compose implements the Link interface for TakeLastLink.
func (l *TakeLastLink[T]) Compose(next Chain[T]) Chain[T] {
	return &takeLastActivity[T]{Activity: NewActivity(next), ring: newRingBuffer[T](l.Count)}
}

type takeLastActivity[T any] struct {
	Activity[T]
	ring *ringBuffer[T]
}

func (a *takeLastActivity[T]) ProcessNext(item T) (ChainStatus, error) {
	a.ring.push(item)
	return Filter, nil
}

func (a *takeLastActivity[T]) ChainComplete() error {
	for _, item := range a.ring.snapshot() {
		status, err := a.Next(item)
		if err != nil {
			return err
		}
		if status.IsStopped() {
			break
		}
	}
	return a.Activity.ChainComplete()
}
