package dispatcher

import "container/heap"

// eventHeap is the dispatcher's min-heap by (ts, seq), adapted from
// the teacher's BuyBook/SellBook Len/Less/Swap/Push/Pop shape but
// implementing the standard container/heap.Interface directly rather
// than hand-rolling sift-up/down.
type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].TS == h[j].TS {
		return h[i].Seq < h[j].Seq
	}
	return h[i].TS < h[j].TS
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(*Event))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return ev
}

var _ heap.Interface = (*eventHeap)(nil)
