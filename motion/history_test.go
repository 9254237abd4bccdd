package pogo_test

import (
	"testing"

	Pm "github.com/maroda/pogo/motion"
	Pt "github.com/maroda/pogo/types"
)

func TestValToRune(t *testing.T) {
	tests := []struct {
		name      string
		magnitude float64
		want      rune
	}{
		{"Freefall is the floor", 0, '▁'},
		{"Rest sits in the middle", 9.81, '▄'},
		{"Hard landing fills the bar", 25, '█'},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pm.ValToRune(tt.magnitude, 9.81)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("Zero baseline uses standard gravity", func(t *testing.T) {
		if Pm.ValToRune(9.81, 0) != '▄' {
			t.Errorf("expected the rest rune")
		}
	})
}

func TestTimeseries(t *testing.T) {
	ts := Pm.NewTimeseries(4)

	t.Run("Starts blank", func(t *testing.T) {
		got, _ := ts.GetDisplay()
		assertString(t, string(got), "    ")
	})

	t.Run("Newest value is on the right", func(t *testing.T) {
		ts.Add(9.81, 9.81, false)
		ts.Add(25, 9.81, true)
		got, marks := ts.GetDisplay()
		assertString(t, string(got), "  ▄█")
		if !marks[3] || marks[2] {
			t.Errorf("bounce marks wrong: %v", marks)
		}
	})

	t.Run("Window rolls over", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			ts.Add(0, 9.81, false)
		}
		got, _ := ts.GetDisplay()
		assertString(t, string(got), "▁▁▁▁")
	})

	t.Run("Mark flags the newest slot", func(t *testing.T) {
		ts.Mark()
		_, marks := ts.GetDisplay()
		if !marks[3] || marks[2] {
			t.Errorf("bounce marks wrong: %v", marks)
		}
	})

	t.Run("Zero size uses the default window", func(t *testing.T) {
		assertInt(t, Pm.NewTimeseries(0).MaxSize, Pm.HistoryWindow)
	})
}

func TestNewBounceRecord(t *testing.T) {
	b := Pm.NewBounceRecord("abc", 3, 1700000000000, 14.81234, 5.00049)

	want := Pt.BounceRecord{SessionID: "abc", Count: 3, TimestampMs: 1700000000000, Magnitude: 14.812, Deviation: 5}
	if *b != want {
		t.Errorf("got %+v, want %+v", *b, want)
	}

	t.Run("Timestamp converts back to wall time", func(t *testing.T) {
		assertInt64(t, Pm.BounceTime(b).UnixMilli(), 1700000000000)
		assertInt(t, len(Pm.TimestampString(b)), len("20060102T150405"))
	})
}
