package worker

import "time"

// item is a queued unit of work with its eligibility time.
type item[T any] struct {
	ticket   Ticket
	work     T
	eligible time.Time
	index    int
}

// itemHeap orders items by eligibility time, then by submission order.
// It implements container/heap.Interface.
type itemHeap[T any] []*item[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].eligible.Equal(h[j].eligible) {
		return h[i].ticket < h[j].ticket
	}
	return h[i].eligible.Before(h[j].eligible)
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	it := x.(*item[T])
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}
