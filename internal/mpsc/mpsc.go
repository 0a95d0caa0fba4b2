// Package mpsc implements an unbounded lock-free multi-producer
// single-consumer queue.
package mpsc

import "sync/atomic"

type node[T any] struct {
	next atomic.Pointer[node[T]]
	val  T
}

// Queue is safe for concurrent Push from any number of goroutines. Pop and
// Drain must only be called from one goroutine at a time.
type Queue[T any] struct {
	head atomic.Pointer[node[T]]
	tail *node[T]
	n    atomic.Int64
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	stub := &node[T]{}
	q.head.Store(stub)
	q.tail = stub
	return q
}

func (q *Queue[T]) Push(v T) {
	n := &node[T]{val: v}
	prev := q.head.Swap(n)
	prev.next.Store(n)
	q.n.Add(1)
}

// Pop returns the oldest element. It may report an empty queue while a
// concurrent Push is halfway done; that element is returned by a later Pop.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	next := q.tail.next.Load()
	if next == nil {
		return zero, false
	}
	q.tail = next
	v := next.val
	next.val = zero
	q.n.Add(-1)
	return v, true
}

// Drain pops at most max elements (all if max <= 0) and passes them to f.
func (q *Queue[T]) Drain(max int, f func(T)) int {
	n := 0
	for max <= 0 || n < max {
		v, ok := q.Pop()
		if !ok {
			break
		}
		f(v)
		n++
	}
	return n
}

// Len returns the approximate number of queued elements.
func (q *Queue[T]) Len() int { return int(q.n.Load()) }
