package timer

import (
	"container/heap"
	"time"
)

type (
	// Entry describes a scheduled callback
	Entry struct {
		Func     Func
		At       time.Time
		Key      string
		Interval time.Duration
		seq      uint64
		index    int
	}

	// Heap stores scheduled entries ordered by run time, then by the order
	// in which they were inserted
	Heap struct {
		items []*Entry
		byKey map[string]*Entry
		seq   uint64
	}
)

// NewHeap creates an empty entry heap
func NewHeap() *Heap {
	h := &Heap{
		byKey: map[string]*Entry{},
	}
	heap.Init(h)
	return h
}

// Insert adds an entry or replaces the one registered under the same key
func (h *Heap) Insert(e *Entry) {
	if e == nil || e.Func == nil || e.At.IsZero() {
		return
	}
	if e.Key != "" {
		if old, ok := h.byKey[e.Key]; ok && old != e {
			old.Func = e.Func
			old.At = e.At
			old.Interval = e.Interval
			heap.Fix(h, old.index)
			return
		}
	}
	h.seq++
	e.seq = h.seq
	heap.Push(h, e)
}

// PopEntry removes and returns the next scheduled entry
func (h *Heap) PopEntry() *Entry {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Entry)
}

// Peek returns the next scheduled entry without removing it
func (h *Heap) Peek() *Entry {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Cancel removes the entry registered under key
func (h *Heap) Cancel(key string) {
	if e, ok := h.byKey[key]; ok {
		heap.Remove(h, e.index)
	}
}

// CancelPrefix removes every entry whose key starts with prefix
func (h *Heap) CancelPrefix(prefix string) {
	for key, e := range h.byKey {
		if hasKeyPrefix(key, prefix) {
			heap.Remove(h, e.index)
		}
	}
}

// Len returns the number of scheduled entries
func (h *Heap) Len() int {
	return len(h.items)
}

// Less reports whether the entry at i should run before the entry at j
func (h *Heap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.At.Equal(b.At) {
		return a.seq < b.seq
	}
	return a.At.Before(b.At)
}

// Swap exchanges the entries at the provided indexes
func (h *Heap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an entry to the underlying heap implementation
func (h *Heap) Push(x any) {
	e := x.(*Entry)
	e.index = len(h.items)
	h.items = append(h.items, e)
	if e.Key != "" {
		h.byKey[e.Key] = e
	}
}

// Pop removes an entry from the underlying heap implementation
func (h *Heap) Pop() any {
	old := h.items
	n := len(old)
	if n == 0 {
		return nil
	}
	e := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	e.index = -1
	if e.Key != "" && h.byKey[e.Key] == e {
		delete(h.byKey, e.Key)
	}
	return e
}
