package queue

import "container/heap"

// jobHeap orders ready jobs by (priority DESC, enqueued_at ASC). The seq
// field breaks ties between jobs enqueued within the same clock tick.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}

func newJobHeap() *jobHeap {
	h := make(jobHeap, 0)
	heap.Init(&h)
	return &h
}
