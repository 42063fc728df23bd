package command

import "time"

// deadlineItem is one entry in the deadline heap, mirroring the
// teacher's heap.Interface Item/index shape but ordered by timer
// expiry instead of task priority.
type deadlineItem struct {
	id       uint64
	deadline time.Time
	index    int
}

// deadlineHeap is a min-heap of pending commands ordered by deadline,
// so the tracker's sweep only ever looks at the commands that are
// actually due instead of scanning the whole pending table.
type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	item := x.(*deadlineItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
