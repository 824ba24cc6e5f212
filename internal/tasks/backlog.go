package tasks

import (
	"container/heap"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	entry struct {
		task  *api.Task
		seq   uint64
		index int
	}

	// backlog orders pending entries by priority desc, creation time asc,
	// then insertion order
	backlog struct {
		items []*entry
	}
)

func newBacklog() *backlog {
	b := &backlog{}
	heap.Init(b)
	return b
}

func (b *backlog) add(e *entry) {
	heap.Push(b, e)
}

func (b *backlog) next() *entry {
	if b.Len() == 0 {
		return nil
	}
	return heap.Pop(b).(*entry)
}

func (b *backlog) remove(e *entry) {
	if e.index >= 0 && e.index < len(b.items) && b.items[e.index] == e {
		heap.Remove(b, e.index)
	}
}

func (b *backlog) fix(e *entry) {
	if e.index >= 0 && e.index < len(b.items) && b.items[e.index] == e {
		heap.Fix(b, e.index)
	}
}

func (b *backlog) Len() int {
	return len(b.items)
}

func (b *backlog) Less(i, j int) bool {
	l, r := b.items[i], b.items[j]
	if l.task.Priority != r.task.Priority {
		return l.task.Priority > r.task.Priority
	}
	if !l.task.CreatedAt.Equal(r.task.CreatedAt) {
		return l.task.CreatedAt.Before(r.task.CreatedAt)
	}
	return l.seq < r.seq
}

func (b *backlog) Swap(i, j int) {
	b.items[i], b.items[j] = b.items[j], b.items[i]
	b.items[i].index = i
	b.items[j].index = j
}

func (b *backlog) Push(x any) {
	e := x.(*entry)
	e.index = len(b.items)
	b.items = append(b.items, e)
}

func (b *backlog) Pop() any {
	old := b.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	b.items = old[:n-1]
	e.index = -1
	return e
}
