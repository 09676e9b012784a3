// Package mempool provides size-classed sync.Pool buffers for the hot paths of
// the OCR pipeline: normalized input tensors and binarized probability maps.
package mempool

import "sync"

const classStep = 1024

// Pool hands out slices of T bucketed by size class.
type Pool[T any] struct {
	classes sync.Map // size class (int) -> *sync.Pool
	zero    bool
}

// New returns a pool. With zeroed set, Get clears the returned prefix.
func New[T any](zeroed bool) *Pool[T] {
	return &Pool[T]{zero: zeroed}
}

// sizeClass rounds n up to the next multiple of 1024, with a floor of 1024.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return ((n + classStep - 1) / classStep) * classStep
}

func (p *Pool[T]) bucket(cls int) *sync.Pool {
	v, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return v.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// Get returns a slice of length n. Release it with Put.
func (p *Pool[T]) Get(n int) []T {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp, ok := p.bucket(cls).Get().(*[]T)
	if !ok || cap(*bp) < cls {
		buf := make([]T, cls)
		bp = &buf
	}
	buf := (*bp)[:n]
	if p.zero {
		clear(buf)
	}
	return buf
}

// Put returns a buffer obtained from Get. Nil slices are ignored.
func (p *Pool[T]) Put(buf []T) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cap(buf) < cls {
		// not one of ours; a smaller bucket would hand it out short
		return
	}
	full := buf[:cap(buf)]
	p.bucket(cls).Put(&full)
}

var (
	float32s = New[float32](false)
	bools    = New[bool](true)
)

// GetFloat32 returns a []float32 of length n with unspecified contents.
func GetFloat32(n int) []float32 { return float32s.Get(n) }

// PutFloat32 releases a buffer from GetFloat32.
func PutFloat32(buf []float32) { float32s.Put(buf) }

// GetBool returns a zeroed []bool of length n.
func GetBool(n int) []bool { return bools.Get(n) }

// PutBool releases a buffer from GetBool.
func PutBool(buf []bool) { bools.Put(buf) }
