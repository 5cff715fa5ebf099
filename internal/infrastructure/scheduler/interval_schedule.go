package scheduler

import (
	"time"
)

// Every runs a job at a fixed interval, measured from the previous start.
type Every time.Duration

// Next returns t plus the interval. A non-positive interval falls back to
// one minute so a misconfigured job cannot spin.
func (e Every) Next(t time.Time) time.Time {
	d := time.Duration(e)
	if d <= 0 {
		d = time.Minute
	}
	return t.Add(d)
}

func (e Every) String() string {
	return "@every " + time.Duration(e).String()
}
