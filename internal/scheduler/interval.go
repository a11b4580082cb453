package scheduler

import "time"

// Interval tracks an elapsed-time cadence inside a sequential loop. Due
// reports whether the interval has passed since the last Mark; the zero
// last-fire time makes the first Due true so startup work runs immediately.
type Interval struct {
	every time.Duration
	last  time.Time
	nowFn func() time.Time
}

func NewInterval(every time.Duration) *Interval {
	return &Interval{every: every, nowFn: time.Now}
}

// SetNowFunc overrides the clock; test hook.
func (i *Interval) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		i.nowFn = fn
	}
}

func (i *Interval) Due() bool {
	if i.every <= 0 {
		return false
	}
	return i.nowFn().Sub(i.last) >= i.every
}

func (i *Interval) Mark() {
	i.last = i.nowFn()
}

// DueAndMark combines the check and the mark for the common loop pattern.
func (i *Interval) DueAndMark() bool {
	if !i.Due() {
		return false
	}
	i.Mark()
	return true
}
