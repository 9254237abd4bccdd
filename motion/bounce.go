package pogo

import (
	"time"

	Pt "github.com/maroda/pogo/types"
)

// NewBounceRecord builds the stored history for one bounce.
// There is no boolean, the existence of a record means the bounce fired.
func NewBounceRecord(session string, count int, tMs int64, magnitude, deviation float64) *Pt.BounceRecord {
	return &Pt.BounceRecord{
		SessionID:   session,
		Count:       count,
		TimestampMs: tMs,
		Magnitude:   FloatPrecise(magnitude, 3),
		Deviation:   FloatPrecise(deviation, 3),
	}
}

// BounceTime converts the sample clock back into wall time
func BounceTime(b *Pt.BounceRecord) time.Time {
	return time.UnixMilli(b.TimestampMs)
}

// TimestampString is the compact form used in logs and the TUI
func TimestampString(b *Pt.BounceRecord) string {
	return BounceTime(b).Format("20060102T150405")
}
