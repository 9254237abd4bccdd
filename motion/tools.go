package pogo

import (
	"log/slog"
	"math"
	"os"
	"strconv"
)

// FillEnvVar returns the value of a runtime Environment Variable
func FillEnvVar(ev string) string {
	// If the EnvVar doesn't exist return a default string
	value := os.Getenv(ev)
	if value == "" {
		value = "ENOENT"
	}
	return value
}

// FillEnvVarInt returns the integer value of an Environment Variable,
// or the default d when it is unset or unreadable
func FillEnvVarInt(ev string, d int) int {
	value := os.Getenv(ev)
	if value == "" {
		return d
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		slog.Error("Could not read integer env var, using default",
			slog.String("var", ev),
			slog.String("value", value),
			slog.Int("default", d))
		return d
	}
	return i
}

// FillEnvVarFloat is FillEnvVarInt for float64 values
func FillEnvVarFloat(ev string, d float64) float64 {
	value := os.Getenv(ev)
	if value == "" {
		return d
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		slog.Error("Could not read float env var, using default",
			slog.String("var", ev),
			slog.String("value", value),
			slog.Float64("default", d))
		return d
	}
	return f
}

// FloatPrecise rounds f to p decimal places for display
func FloatPrecise(f float64, p int) float64 {
	k := math.Pow10(p)
	return math.Round(f*k) / k
}
