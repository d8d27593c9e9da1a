package upload

import "time"

// Clock abstracts wall time so expiry and throughput logic can be tested
// without waiting on real timers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
