package engine

import (
	"math"
	"time"
)

// ReconstructTimestamp recovers the full tick value of an event whose
// counter was truncated to bits at capture.
//
// If the low bits of now are below the captured value the counter wrapped
// once since capture, so the high bits come from now - 2^bits. Captures
// older than 2^bits ticks are ambiguous and reconstruct one period late.
func ReconstructTimestamp(now int64, truncated uint32, bits uint) int64 {
	if bits == 0 || bits > 32 {
		bits = 32
	}
	span := int64(1) << bits
	mask := span - 1
	low := int64(truncated) & mask
	base := now
	if now&mask < low {
		base = now - span
	}
	return (base &^ mask) | low
}

// TickRate is the number of scheduler ticks per second.
type TickRate int64

// DefaultTickRate is one tick per microsecond.
const DefaultTickRate TickRate = 1_000_000

// FromMillis converts milliseconds to ticks, rounding to nearest.
func (r TickRate) FromMillis(ms float64) int64 {
	return int64(math.Round(ms * float64(r) / 1000))
}

// ToMillis converts ticks to milliseconds.
func (r TickRate) ToMillis(ticks int64) float64 {
	return float64(ticks) * 1000 / float64(r)
}

// FromDuration converts a duration to ticks, rounding to nearest.
func (r TickRate) FromDuration(d time.Duration) int64 {
	return int64(math.Round(d.Seconds() * float64(r)))
}

// ToDuration converts ticks to a duration, truncating below a nanosecond.
func (r TickRate) ToDuration(ticks int64) time.Duration {
	rate := int64(r)
	whole, frac := ticks/rate, ticks%rate
	return time.Duration(whole)*time.Second + time.Duration(frac)*time.Second/time.Duration(rate)
}
