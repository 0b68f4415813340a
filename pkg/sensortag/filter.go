package sensortag

import (
	"sort"
	"time"
)

type sample struct {
	ts    time.Time
	value float64
}

// AxisFilter is a time-windowed moving average over a single axis.
//
// The window is anchored at the greatest timestamp pushed so far: Average
// returns the mean of the samples whose timestamp lies in
// [latest-window, latest]. Before the first Push, Average returns 0.
type AxisFilter struct {
	window  time.Duration
	samples []sample
}

func NewAxisFilter(window time.Duration) *AxisFilter {
	return &AxisFilter{window: window}
}

// Push records a sample. Out-of-order samples are inserted by timestamp;
// a sample already outside the window is dropped.
func (f *AxisFilter) Push(ts time.Time, value float64) {
	n := len(f.samples)
	if n > 0 && ts.Before(f.samples[n-1].ts) {
		if ts.Before(f.samples[n-1].ts.Add(-f.window)) {
			return
		}
		i := sort.Search(n, func(i int) bool { return f.samples[i].ts.After(ts) })
		f.samples = append(f.samples, sample{})
		copy(f.samples[i+1:], f.samples[i:])
		f.samples[i] = sample{ts: ts, value: value}
	} else {
		f.samples = append(f.samples, sample{ts: ts, value: value})
	}
	f.evict()
}

// Average returns the mean of the samples in the window.
func (f *AxisFilter) Average() float64 {
	f.evict()
	if len(f.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range f.samples {
		sum += s.value
	}
	return sum / float64(len(f.samples))
}

// Len returns the number of samples currently retained.
func (f *AxisFilter) Len() int {
	return len(f.samples)
}

func (f *AxisFilter) evict() {
	n := len(f.samples)
	if n == 0 {
		return
	}
	cutoff := f.samples[n-1].ts.Add(-f.window)
	i := 0
	for i < n && f.samples[i].ts.Before(cutoff) {
		i++
	}
	if i > 0 {
		f.samples = append(f.samples[:0], f.samples[i:]...)
	}
}
