package plugin

/*
	Cadence

	Bounces per minute, from the gap between consecutive bounces.
	Smoothed a little so one early landing doesn't jerk the display.
*/

import (
	"sync"
)

const cadenceAlpha = 0.5

type Cadence struct {
	MU     sync.RWMutex
	PrevMs int64   // timestamp of the last bounce
	Seen   bool    // at least one bounce recorded
	BPM    float64 // current smoothed rate
}

// Mark records a bounce at tMs and returns the updated rate.
// The first bounce of a run has no rate.
func (c *Cadence) Mark(tMs int64) float64 {
	c.MU.Lock()
	defer c.MU.Unlock()

	if !c.Seen {
		c.Seen = true
		c.PrevMs = tMs
		return c.BPM
	}

	rate := CalcRate(tMs, c.PrevMs)
	c.PrevMs = tMs
	if rate <= 0 {
		return c.BPM
	}

	if c.BPM == 0 {
		c.BPM = rate
	} else {
		c.BPM = cadenceAlpha*rate + (1-cadenceAlpha)*c.BPM
	}
	return c.BPM
}

func (c *Cadence) Rate() float64 {
	c.MU.RLock()
	defer c.MU.RUnlock()
	return c.BPM
}

// Reset starts a new run
func (c *Cadence) Reset() {
	c.MU.Lock()
	defer c.MU.Unlock()
	c.PrevMs = 0
	c.Seen = false
	c.BPM = 0
}

// CalcRate is a generic rate calculator that
// receives two sequential event times in milliseconds
// and returns the rate per minute
func CalcRate(currMs, prevMs int64) float64 {
	delta := currMs - prevMs
	if delta <= 0 {
		return 0
	}
	return 60000 / float64(delta)
}

func (c *Cadence) Type() string { return "cadence" }
