package timer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kode4food/foreman/pkg/log"
)

type (
	// Scheduler runs keyed callbacks at a requested time, optionally
	// repeating them at a fixed interval
	Scheduler struct {
		now      Clock
		newAlarm AlarmFactory
		reqs     chan request
	}

	// Func is called when its run time arrives
	Func func() error

	requestOp uint8

	request struct {
		entry *Entry
		key   string
		op    requestOp
	}
)

const (
	opSchedule requestOp = iota
	opCancel
	opCancelPrefix
)

const requestBuffer = 100

// New creates a Scheduler reading time from now and waking on alarms built
// by newAlarm. Nil arguments select the wall clock
func New(now Clock, newAlarm AlarmFactory) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if newAlarm == nil {
		newAlarm = NewAlarm
	}
	return &Scheduler{
		now:      now,
		newAlarm: newAlarm,
		reqs:     make(chan request, requestBuffer),
	}
}

// Now returns the scheduler's notion of the current time
func (s *Scheduler) Now() time.Time {
	return s.now()
}

// Schedule runs fn once at the requested time, replacing any callback
// already registered under key
func (s *Scheduler) Schedule(
	ctx context.Context, key string, at time.Time, fn Func,
) {
	s.send(ctx, request{
		op:    opSchedule,
		entry: &Entry{Func: fn, At: at, Key: key},
	})
}

// Every runs fn after each interval elapses. The next run is armed only
// once the previous one has returned
func (s *Scheduler) Every(
	ctx context.Context, key string, interval time.Duration, fn Func,
) error {
	if interval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInterval, key)
	}
	s.send(ctx, request{
		op: opSchedule,
		entry: &Entry{
			Func:     fn,
			At:       s.now().Add(interval),
			Key:      key,
			Interval: interval,
		},
	})
	return nil
}

// Cancel removes the callback registered under key
func (s *Scheduler) Cancel(ctx context.Context, key string) {
	s.send(ctx, request{op: opCancel, key: key})
}

// CancelPrefix removes every callback whose key starts with prefix
func (s *Scheduler) CancelPrefix(ctx context.Context, prefix string) {
	s.send(ctx, request{op: opCancelPrefix, key: prefix})
}

// Run processes scheduler requests until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	alarm := s.newAlarm()
	var ring <-chan time.Time
	entries := NewHeap()

	rearm := func() {
		next := entries.Peek()
		if next == nil {
			alarm.Disarm()
			ring = nil
			return
		}
		alarm.Arm(next.At.Sub(s.now()))
		ring = alarm.Ring()
	}

	rearm()

	for {
		select {
		case <-ctx.Done():
			alarm.Disarm()
			return
		case req := <-s.reqs:
			switch req.op {
			case opSchedule:
				entries.Insert(req.entry)
			case opCancel:
				entries.Cancel(req.key)
			case opCancelPrefix:
				entries.CancelPrefix(req.key)
			}
			rearm()
		case <-ring:
			e := entries.PopEntry()
			if e == nil {
				rearm()
				continue
			}
			s.run(e)
			if e.Interval > 0 {
				e.At = s.now().Add(e.Interval)
				entries.Insert(e)
			}
			rearm()
		}
	}
}

func (s *Scheduler) run(e *Entry) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduled callback panicked",
				slog.String("key", e.Key),
				slog.Any("panic", r))
		}
	}()
	if err := e.Func(); err != nil {
		slog.Error("Scheduled callback failed",
			slog.String("key", e.Key),
			log.Error(err))
	}
}

func (s *Scheduler) send(ctx context.Context, req request) {
	select {
	case s.reqs <- req:
	case <-ctx.Done():
	}
}

func hasKeyPrefix(key, prefix string) bool {
	return prefix != "" && strings.HasPrefix(key, prefix)
}
