package plugin_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	Mp "github.com/maroda/pogo/plugin"
)

func TestCalcRate(t *testing.T) {
	t.Run("Returns rate per minute", func(t *testing.T) {
		// 500ms between bounces is 120 per minute
		got := Mp.CalcRate(1500, 1000)
		assertFloat(t, got, 120)
	})

	t.Run("Returns zero for a non-increasing clock", func(t *testing.T) {
		assertFloat(t, Mp.CalcRate(1000, 1000), 0)
		assertFloat(t, Mp.CalcRate(900, 1000), 0)
	})
}

func TestCadence(t *testing.T) {
	t.Run("Type returns the correct value", func(t *testing.T) {
		c := Mp.Cadence{}
		assertStringContains(t, c.Type(), "cadence")
	})

	t.Run("First bounce has no rate", func(t *testing.T) {
		c := &Mp.Cadence{}
		got := c.Mark(0)
		assertFloat(t, got, 0)
	})

	t.Run("Second bounce sets the rate directly", func(t *testing.T) {
		c := &Mp.Cadence{}
		c.Mark(0)
		got := c.Mark(600)
		assertFloat(t, got, 100)
	})

	t.Run("Later bounces are smoothed", func(t *testing.T) {
		c := &Mp.Cadence{}
		c.Mark(0)
		c.Mark(600)         // 100 bpm
		got := c.Mark(1000) // 150 bpm raw
		assertFloat(t, got, 125)
		assertFloat(t, c.Rate(), 125)
	})

	t.Run("Reset starts a new run", func(t *testing.T) {
		c := &Mp.Cadence{}
		c.Mark(0)
		c.Mark(600)
		c.Reset()
		assertFloat(t, c.Rate(), 0)
		got := c.Mark(5000)
		assertFloat(t, got, 0)
	})
}

/// Helpers

func assertError(t testing.TB, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Errorf("got error %q want %q", got, want)
	}
}

func assertGotError(t testing.TB, got error) {
	t.Helper()
	if got == nil {
		t.Errorf("Expected an error but got %q", got)
	}
}

func assertInt(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}

func assertInt64(t *testing.T, got, want int64) {
	t.Helper()
	if got != want {
		t.Errorf("did not get correct value, got %d, want %d", got, want)
	}
}

func assertFloat(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("did not get correct value, got %v, want %v", got, want)
	}
}

func assertStringContains(t *testing.T, full, want string) {
	t.Helper()
	if !strings.Contains(full, want) {
		t.Errorf("Did not find %q, expected string contains %q", want, full)
	}
}
