// Package window implements the incremental moving average over the most
// recent inter-beat intervals.
package window

// Averager maintains the arithmetic mean of the last N inter-beat intervals
// without rescanning the whole window on every observation.
//
// It operates in two phases. While filling, each observation recomputes the
// mean over the slots filled so far. Once the window has completed its first
// full cycle it switches to steady state and updates the mean algebraically:
// the contribution of the slot about to be overwritten is subtracted and the
// new interval's contribution added, both weighted by 1/N.
//
// Not thread-safe; the owning Heartbeat serializes access under its mutex.
type Averager struct {
	intervals []int64
	index     int
	steady    bool
	mean      float64
}

// New creates an averager over a window of size intervals.
//
// Size must be positive; the caller validates configuration before
// construction.
func New(size int64) *Averager {
	return &Averager{intervals: make([]int64, size)}
}

// Prime stores a zero interval in slot 0 without advancing the cursor.
//
// Called once for the very first beat, which has no preceding interval. The
// first real observation overwrites slot 0, so the priming value never
// contributes to a reported rate.
func (a *Averager) Prime() {
	a.intervals[0] = 0
}

// Observe records one inter-beat interval in nanoseconds and returns the
// windowed rate in beats per second.
//
// A mean of exactly zero (pathological zero-duration intervals) yields +Inf:
// the rate is mathematically undefined, not an error.
func (a *Averager) Observe(interval int64) float64 {
	n := len(a.intervals)

	if !a.steady {
		a.intervals[a.index] = interval

		var sum float64
		for i := 0; i <= a.index; i++ {
			sum += float64(a.intervals[i])
		}
		a.mean = sum / float64(a.index+1)

		a.index++
		if a.index == n {
			a.index = 0
			a.steady = true
		}
	} else {
		a.mean -= float64(a.intervals[a.index]) / float64(n)
		a.mean += float64(interval) / float64(n)
		a.intervals[a.index] = interval

		a.index++
		if a.index == n {
			a.index = 0
		}
	}

	return 1e9 / a.mean
}

// Mean returns the current mean interval in nanoseconds.
func (a *Averager) Mean() float64 {
	return a.mean
}

// Steady reports whether the window has completed its first full cycle.
func (a *Averager) Steady() bool {
	return a.steady
}
