package pogo

import (
	"sync"
)

const HistoryWindow = 60

// Timeseries is a rolling window of magnitudes kept as runes for drawing.
// A bounce marks its slot so the sparkline can highlight it.
type Timeseries struct {
	MU      sync.RWMutex
	Runes   []rune
	Bounce  []bool
	MaxSize int
	Current int
}

func NewTimeseries(size int) *Timeseries {
	if size <= 0 {
		size = HistoryWindow
	}
	ts := &Timeseries{
		Runes:   make([]rune, size),
		Bounce:  make([]bool, size),
		MaxSize: size,
	}
	for i := range ts.Runes {
		ts.Runes[i] = ' '
	}
	return ts
}

// Add advances the window by one slot
func (ts *Timeseries) Add(magnitude, baseline float64, isBounce bool) {
	ts.MU.Lock()
	defer ts.MU.Unlock()

	ts.Current = (ts.Current + 1) % ts.MaxSize
	ts.Runes[ts.Current] = ValToRune(magnitude, baseline)
	ts.Bounce[ts.Current] = isBounce
}

// ValToRune scales magnitude against the resting baseline.
// At rest the bar sits in the middle, a hard landing fills it.
func ValToRune(magnitude, baseline float64) rune {
	if baseline <= 0 {
		baseline = StandardGravity
	}
	r := magnitude / baseline
	switch {
	case r < 0.25:
		return '▁'
	case r < 0.5:
		return '▂'
	case r < 0.75:
		return '▃'
	case r < 1.1:
		return '▄'
	case r < 1.3:
		return '▅'
	case r < 1.6:
		return '▆'
	case r < 2.0:
		return '▇'
	default:
		return '█'
	}
}

// GetDisplay provides the runes oldest to newest, left to right,
// with the matching bounce marks
func (ts *Timeseries) GetDisplay() ([]rune, []bool) {
	ts.MU.RLock()
	defer ts.MU.RUnlock()

	display := make([]rune, ts.MaxSize)
	marks := make([]bool, ts.MaxSize)
	for i := 0; i < ts.MaxSize; i++ {
		idx := (ts.Current + 1 + i) % ts.MaxSize
		display[i] = ts.Runes[idx]
		marks[i] = ts.Bounce[idx]
	}
	return display, marks
}

// Mark flags the newest slot as a bounce
func (ts *Timeseries) Mark() {
	ts.MU.Lock()
	defer ts.MU.Unlock()
	ts.Bounce[ts.Current] = true
}
