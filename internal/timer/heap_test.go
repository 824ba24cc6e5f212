package timer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/foreman/internal/timer"
)

func TestHeapOrdering(t *testing.T) {
	now := time.Now()
	h := timer.NewHeap()
	noop := func() error { return nil }

	h.Insert(&timer.Entry{Key: "c", At: now.Add(3 * time.Second), Func: noop})
	h.Insert(&timer.Entry{Key: "a", At: now.Add(time.Second), Func: noop})
	h.Insert(&timer.Entry{Key: "b", At: now.Add(time.Second), Func: noop})

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, "a", h.PopEntry().Key)
	assert.Equal(t, "b", h.PopEntry().Key)
	assert.Equal(t, "c", h.PopEntry().Key)
	assert.Nil(t, h.PopEntry())
	assert.Nil(t, h.Peek())
}

func TestHeapReplace(t *testing.T) {
	now := time.Now()
	h := timer.NewHeap()
	noop := func() error { return nil }

	h.Insert(&timer.Entry{Key: "a", At: now.Add(time.Minute), Func: noop})
	h.Insert(&timer.Entry{Key: "b", At: now.Add(time.Second), Func: noop})
	h.Insert(&timer.Entry{Key: "a", At: now, Func: noop})

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, "a", h.Peek().Key)
	assert.True(t, h.Peek().At.Equal(now))
}

func TestHeapIgnoresInvalid(t *testing.T) {
	h := timer.NewHeap()
	h.Insert(nil)
	h.Insert(&timer.Entry{Key: "no-func", At: time.Now()})
	h.Insert(&timer.Entry{Key: "no-time", Func: func() error { return nil }})
	assert.Equal(t, 0, h.Len())
}

func TestHeapCancel(t *testing.T) {
	now := time.Now()
	h := timer.NewHeap()
	noop := func() error { return nil }

	h.Insert(&timer.Entry{Key: "wf/1/0", At: now, Func: noop})
	h.Insert(&timer.Entry{Key: "wf/1/1", At: now, Func: noop})
	h.Insert(&timer.Entry{Key: "wf/2/0", At: now, Func: noop})
	h.Insert(&timer.Entry{Key: "monitor", At: now, Func: noop})

	h.Cancel("monitor")
	assert.Equal(t, 3, h.Len())
	h.Cancel("missing")
	assert.Equal(t, 3, h.Len())

	h.CancelPrefix("wf/1/")
	assert.Equal(t, 1, h.Len())
	assert.Equal(t, "wf/2/0", h.Peek().Key)

	h.CancelPrefix("")
	assert.Equal(t, 1, h.Len())
}
