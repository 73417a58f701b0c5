package pose

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeOffset is a position in the video measured in nanoseconds since the
// start of playback. Every source representation is normalized to it before
// comparison.
type TimeOffset int64

// FromDuration converts a time.Duration measured from video start.
func FromDuration(d time.Duration) TimeOffset {
	return TimeOffset(d.Nanoseconds())
}

// MaxTimeOffset is the largest representable offset, about 292 years.
// FromSeconds saturates at ±MaxTimeOffset.
const MaxTimeOffset = TimeOffset(math.MaxInt64)

// FromSeconds converts fractional seconds, as reported by media clocks, to the
// nearest nanosecond. Values beyond the int64 nanosecond range saturate and
// NaN maps to zero.
func FromSeconds(s float64) TimeOffset {
	ns := math.Round(s * 1e9)
	switch {
	case math.IsNaN(ns):
		return 0
	case ns >= math.MaxInt64: // float64(MaxInt64) rounds up to 2^63
		return MaxTimeOffset
	case ns <= -math.MaxInt64:
		return -MaxTimeOffset
	}
	return TimeOffset(ns)
}

// Seconds returns the offset as fractional seconds.
func (t TimeOffset) Seconds() float64 {
	return float64(t) / 1e9
}

// Duration returns the offset as a time.Duration.
func (t TimeOffset) Duration() time.Duration {
	return time.Duration(t)
}

// String formats the offset as exact decimal seconds, e.g. "1.25s".
func (t TimeOffset) String() string {
	n := int64(t)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	secs := n / 1e9
	frac := n % 1e9
	if frac == 0 {
		return sign + strconv.FormatInt(secs, 10) + "s"
	}
	fs := strings.TrimRight(strconv.FormatInt(frac+1e9, 10)[1:], "0")
	return sign + strconv.FormatInt(secs, 10) + "." + fs + "s"
}
