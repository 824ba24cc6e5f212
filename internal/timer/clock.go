package timer

import "time"

type (
	// Clock reports the current time. The monitor and the scheduler both
	// accept one so tests can drive them from a fixed instant
	Clock func() time.Time

	// Alarm wakes the scheduler loop when its earliest entry falls due
	Alarm interface {
		Ring() <-chan time.Time
		Arm(delay time.Duration)
		Disarm()
	}

	// AlarmFactory creates a disarmed Alarm
	AlarmFactory func() Alarm

	wallAlarm struct {
		t *time.Timer
	}
)

// NewAlarm returns an Alarm driven by a runtime timer
func NewAlarm() Alarm {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &wallAlarm{t: t}
}

func (a *wallAlarm) Ring() <-chan time.Time {
	return a.t.C
}

// Arm rings the alarm after delay, discarding any earlier arming. A delay
// that has already passed rings at once
func (a *wallAlarm) Arm(delay time.Duration) {
	a.t.Reset(max(delay, 0))
}

func (a *wallAlarm) Disarm() {
	a.t.Stop()
}
