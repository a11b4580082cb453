package market

// Window is a bounded FIFO of recent ticks plus running parity counters over
// everything ever added. Oldest ticks are evicted first once the bound is
// reached; the counters are lifetime totals and are not decremented on
// eviction.
type Window struct {
	max   int
	ticks []Tick

	totalTicks int
	oddCount   int
	evenCount  int
}

func NewWindow(max int) *Window {
	if max < 1 {
		max = 1
	}
	return &Window{max: max, ticks: make([]Tick, 0, max)}
}

func (w *Window) Add(t Tick) {
	if len(w.ticks) == w.max {
		copy(w.ticks, w.ticks[1:])
		w.ticks = w.ticks[:len(w.ticks)-1]
	}
	w.ticks = append(w.ticks, t)
	w.totalTicks++
	if t.IsOdd {
		w.oddCount++
	} else {
		w.evenCount++
	}
}

func (w *Window) Len() int { return len(w.ticks) }

// Recent returns the last n ticks, oldest first. The returned slice aliases
// the window's storage and must not be retained across Add calls.
func (w *Window) Recent(n int) []Tick {
	if n <= 0 || len(w.ticks) == 0 {
		return nil
	}
	if n > len(w.ticks) {
		n = len(w.ticks)
	}
	return w.ticks[len(w.ticks)-n:]
}

func (w *Window) TotalTicks() int { return w.totalTicks }

// Frequencies reports the lifetime odd/even frequencies; (0.5, 0.5) before
// any tick arrives.
func (w *Window) Frequencies() (odd, even float64) {
	if w.totalTicks == 0 {
		return 0.5, 0.5
	}
	total := float64(w.totalTicks)
	return float64(w.oddCount) / total, float64(w.evenCount) / total
}
