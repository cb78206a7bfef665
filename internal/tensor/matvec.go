package tensor

import (
	"runtime"
	"sync"
)

// Below this many multiply-adds a mat-vec runs inline; dispatching to the
// pool costs more than it saves.
const parallelThreshold = 1 << 15

type matVecTask struct {
	dst    []float32
	w      *Mat
	x      []float32
	rs, re int
	done   chan struct{}
}

type matVecPool struct {
	size      int
	tasks     chan matVecTask
	doneSlots chan chan struct{}
}

var (
	matVecWorkPool *matVecPool
	matVecPoolOnce sync.Once
)

func getMatVecPool() *matVecPool {
	matVecPoolOnce.Do(func() {
		matVecWorkPool = newMatVecPool()
	})
	return matVecWorkPool
}

func newMatVecPool() *matVecPool {
	size := max(runtime.GOMAXPROCS(0), 1)
	p := &matVecPool{
		size:      size,
		tasks:     make(chan matVecTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for range size {
		p.doneSlots <- make(chan struct{}, size)
	}
	for range size {
		go func() {
			for task := range p.tasks {
				matVecRange(task.dst, task.w, task.x, task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// MatVec computes dst = w * x. Large products are split across a shared
// worker pool. The pool keeps no per-call state, so concurrent callers are
// fine as long as their dst slices differ.
func MatVec(dst []float32, w *Mat, x []float32) {
	if w.R == 0 || w.C == 0 {
		return
	}
	if len(dst) < w.R || len(x) < w.C {
		panic("matvec shape mismatch")
	}
	if w.R*w.C < parallelThreshold {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	pool := getMatVecPool()
	workers := min(pool.size, w.R)
	if workers <= 1 {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	chunk := (w.R + workers - 1) / workers
	done := <-pool.doneSlots

	active := 0
	for i := range workers {
		rs := i * chunk
		re := min(rs+chunk, w.R)
		if rs >= re {
			break
		}
		active++
		pool.tasks <- matVecTask{dst: dst, w: w, x: x, rs: rs, re: re, done: done}
	}
	for range active {
		<-done
	}
	pool.doneSlots <- done
}

// MatVecAdd computes dst = w * x + b.
func MatVecAdd(dst []float32, w *Mat, x []float32, b []float32) {
	MatVec(dst, w, x)
	Add(dst[:w.R], b)
}

func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	for i := rs; i < re; i++ {
		row := w.Data[i*w.C : i*w.C+w.C]
		var sum float32
		j := 0
		for ; j+3 < w.C; j += 4 {
			sum += row[j]*x[j] + row[j+1]*x[j+1] + row[j+2]*x[j+2] + row[j+3]*x[j+3]
		}
		for ; j < w.C; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}
