package pogo_test

import (
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	Pd "github.com/maroda/pogo/display"
	Po "github.com/maroda/pogo/obvy"
	Pt "github.com/maroda/pogo/types"
)

func TestScreen(t *testing.T) {
	s := mkTestScreen(t, "")
	defer s.Fini()
	s.Clear()

	t.Run("Check test screen", func(t *testing.T) {
		b, x, y := s.GetContents()
		if len(b) != x*y || x != 80 || y != 25 {
			t.Fatalf("Contents (%v, %v, %v) wrong", len(b), x, y)
		}
	})
}

func TestView_Flash(t *testing.T) {
	v := Pd.NewView(nil, makeTestSupervisor(t), Po.NewStatsInternal())
	clock := time.Unix(1700000000, 0)
	v.Now = func() time.Time { return clock }

	t.Run("Not flashing before a bounce", func(t *testing.T) {
		if v.Flashing() {
			t.Errorf("should not flash yet")
		}
	})

	t.Run("Flashes right after a bounce", func(t *testing.T) {
		v.OnBounceDetected(1)
		clock = clock.Add(150 * time.Millisecond)
		if !v.Flashing() {
			t.Errorf("should flash within %v", Pd.FlashTime)
		}
	})

	t.Run("Flash ends after its time", func(t *testing.T) {
		clock = clock.Add(100 * time.Millisecond)
		if v.Flashing() {
			t.Errorf("should stop flashing after %v", Pd.FlashTime)
		}
	})
}

func TestView_OnMagnitudeUpdate(t *testing.T) {
	t.Run("Each update is a slot with no step", func(t *testing.T) {
		v := Pd.NewView(nil, makeTestSupervisor(t), Po.NewStatsInternal())
		v.Step = 0

		v.OnMagnitudeUpdate(9.81)
		v.OnMagnitudeUpdate(25)
		runes, _ := v.History.GetDisplay()
		assertString(t, string(runes[len(runes)-2:]), "▄█")
		assertFloat(t, v.Magnitude(), 25)
	})

	t.Run("A slot keeps the sample furthest from rest", func(t *testing.T) {
		v := Pd.NewView(nil, makeTestSupervisor(t), Po.NewStatsInternal())
		clock := time.Unix(1700000000, 0)
		v.Now = func() time.Time { return clock }
		v.Step = 50 * time.Millisecond

		v.OnMagnitudeUpdate(9.81) // first update always lands
		v.OnMagnitudeUpdate(12)
		v.OnMagnitudeUpdate(5)
		clock = clock.Add(50 * time.Millisecond)
		v.OnMagnitudeUpdate(9.81)

		runes, _ := v.History.GetDisplay()
		assertString(t, string(runes[len(runes)-2:]), "▄▃")
	})

	t.Run("A bounce marks the newest slot", func(t *testing.T) {
		v := Pd.NewView(nil, makeTestSupervisor(t), Po.NewStatsInternal())
		v.Step = 0
		v.OnMagnitudeUpdate(15)
		v.OnBounceDetected(1)

		_, marks := v.History.GetDisplay()
		if !marks[len(marks)-1] {
			t.Errorf("newest slot should be marked")
		}
	})
}

func TestView_Status(t *testing.T) {
	v := Pd.NewView(nil, makeTestSupervisor(t), Po.NewStatsInternal())

	t.Run("Starts ready", func(t *testing.T) {
		status, _ := v.Status()
		assertString(t, string(status), "ready")
	})

	t.Run("Follows the analyzer", func(t *testing.T) {
		v.OnStatusChanged(Pt.StatusWarning, "stop detection before calibrating")
		status, message := v.Status()
		assertString(t, string(status), "warning")
		assertStringContains(t, message, "stop detection")
	})

	t.Run("Reports a new baseline", func(t *testing.T) {
		v.OnCalibrationComplete(9.1)
		_, message := v.Status()
		assertStringContains(t, message, "9.10")
	})
}

func TestView_HandleKey(t *testing.T) {
	v := makeTestView(t)

	t.Run("d starts detection", func(t *testing.T) {
		quit := v.HandleKey(tcell.NewEventKey(tcell.KeyRune, 'd', tcell.ModNone))
		if quit {
			t.Errorf("d should not quit")
		}
		assertString(t, v.Supervisor.Snapshot().StateName, "detecting")
		status, _ := v.Status()
		assertString(t, string(status), "active")
	})

	t.Run("c is refused while detecting", func(t *testing.T) {
		v.HandleKey(tcell.NewEventKey(tcell.KeyRune, 'c', tcell.ModNone))
		assertString(t, v.Supervisor.Snapshot().StateName, "detecting")
		status, _ := v.Status()
		assertString(t, string(status), "warning")
	})

	t.Run("s stops detection", func(t *testing.T) {
		v.HandleKey(tcell.NewEventKey(tcell.KeyRune, 's', tcell.ModNone))
		assertString(t, v.Supervisor.Snapshot().StateName, "idle")
	})

	t.Run("c starts calibration when idle", func(t *testing.T) {
		v.HandleKey(tcell.NewEventKey(tcell.KeyRune, 'c', tcell.ModNone))
		assertString(t, v.Supervisor.Snapshot().StateName, "calibrating")
	})

	t.Run("x cancels calibration", func(t *testing.T) {
		v.HandleKey(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone))
		assertString(t, v.Supervisor.Snapshot().StateName, "idle")
	})

	t.Run("q and escape quit", func(t *testing.T) {
		if !v.HandleKey(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)) {
			t.Errorf("q should quit")
		}
		if !v.HandleKey(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)) {
			t.Errorf("escape should quit")
		}
	})
}

func TestView_UpdateScreen(t *testing.T) {
	v := makeTestView(t)
	s := mkTestScreen(t, "")
	defer s.Fini()
	v.Screen = s

	assertError(t, v.Supervisor.Do(Pd.CmdStartDetection), nil)
	v.Supervisor.Submit(restSample(0))
	v.Supervisor.Submit(bounceSample(10))
	eventually(t, func() bool { return v.Supervisor.Snapshot().BounceCount == 1 })

	v.UpdateScreen()

	t.Run("Header shows state and count", func(t *testing.T) {
		header := screenRow(s, 1)
		assertStringContains(t, header, "detecting")
		assertStringContains(t, header, "bounces: 1")
	})

	t.Run("Status line shows the analyzer status", func(t *testing.T) {
		_, h := s.Size()
		assertStringContains(t, screenRow(s, h-3), "[active]")
	})

	t.Run("Flash bar is lit after a bounce", func(t *testing.T) {
		if !v.Flashing() {
			t.Skip("flash window already passed")
		}
		_, _, style, _ := s.GetContent(2, 6)
		_, bg, _ := style.Decompose()
		if bg != tcell.ColorHotPink {
			t.Errorf("flash bar background = %v, want HotPink", bg)
		}
	})

	t.Run("Key help is drawn", func(t *testing.T) {
		_, h := s.Size()
		assertStringContains(t, screenRow(s, h-1), "/d/ detect")
	})
}

func TestStatusStyle(t *testing.T) {
	tests := []struct {
		status Pt.Status
		want   tcell.Color
	}{
		{Pt.StatusActive, tcell.ColorLightGreen},
		{Pt.StatusWarning, tcell.ColorDarkOrange},
		{Pt.StatusError, tcell.ColorRed},
		{Pt.StatusReady, tcell.ColorLightSteelBlue},
	}
	for _, tt := range tests {
		t.Run(string(tt.status)+" has its color", func(t *testing.T) {
			fg, _, _ := Pd.StatusStyle(tt.status).Decompose()
			if fg != tt.want {
				t.Errorf("got %v, want %v", fg, tt.want)
			}
		})
	}
}

// Helpers //

func mkTestScreen(t *testing.T, charset string) tcell.SimulationScreen {
	s := tcell.NewSimulationScreen(charset)
	if s == nil {
		t.Fatalf("Failed to get SimulationScreen")
	}
	if err := s.Init(); err != nil {
		t.Fatalf("Failed to init screen: %v", err)
	}
	return s
}

// screenRow reads one row of the simulation screen as text
func screenRow(s tcell.SimulationScreen, y int) string {
	cells, w, _ := s.GetContents()
	var b strings.Builder
	for x := 0; x < w; x++ {
		c := cells[y*w+x]
		if len(c.Runes) == 0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(c.Runes[0])
	}
	return b.String()
}
