package annotations

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/pose.overlay/internal/pose"
)

// ErrOutOfRange reports a time offset beyond the int64 nanosecond range.
var ErrOutOfRange = errors.New("time offset out of range")

// ParseDecimalSeconds parses a decimal-seconds offset such as "1.5s",
// "12s" or "0.033333". The trailing "s" is optional. Digits beyond
// nanosecond precision are truncated; no floating point rounding occurs.
func ParseDecimalSeconds(s string) (pose.TimeOffset, error) {
	v := strings.TrimSpace(s)
	v = strings.TrimSuffix(v, "s")
	if v == "" {
		return 0, fmt.Errorf("empty time offset %q", s)
	}

	neg := false
	switch v[0] {
	case '-':
		neg = true
		v = v[1:]
	case '+':
		v = v[1:]
	}

	whole, frac, hasFrac := strings.Cut(v, ".")
	if whole == "" && (!hasFrac || frac == "") {
		return 0, fmt.Errorf("invalid time offset %q", s)
	}

	var secs int64
	if whole != "" {
		if !allDigits(whole) {
			return 0, fmt.Errorf("invalid time offset %q", s)
		}
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time offset %q: %w", s, err)
		}
		secs = n
	}

	var nanos int64
	if hasFrac && frac != "" {
		if !allDigits(frac) {
			return 0, fmt.Errorf("invalid time offset %q", s)
		}
		if len(frac) > 9 {
			frac = frac[:9]
		}
		frac += strings.Repeat("0", 9-len(frac))
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time offset %q: %w", s, err)
		}
		nanos = n
	}

	if secs > (math.MaxInt64-nanos)/1e9 {
		return 0, fmt.Errorf("%w: %q", ErrOutOfRange, s)
	}
	total := secs*1e9 + nanos
	if neg {
		total = -total
	}
	return pose.TimeOffset(total), nil
}

// FromSecondsNanos converts the protobuf Duration style pair of whole
// seconds plus a nanosecond fraction. As in protobuf, nanos carries the
// sign of seconds and must lie within ±999,999,999.
func FromSecondsNanos(seconds int64, nanos int32) (pose.TimeOffset, error) {
	if nanos <= -1e9 || nanos >= 1e9 || (seconds > 0 && nanos < 0) || (seconds < 0 && nanos > 0) {
		return 0, fmt.Errorf("invalid nanos %d for seconds %d", nanos, seconds)
	}
	n := int64(nanos)
	if (n >= 0 && seconds > (math.MaxInt64-n)/1e9) || (n <= 0 && seconds < (-math.MaxInt64-n)/1e9) {
		return 0, fmt.Errorf("%w: %ds %dns", ErrOutOfRange, seconds, nanos)
	}
	return pose.TimeOffset(seconds*1e9 + n), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// timeField decodes either schema of a time offset: a decimal-seconds
// string, a bare number of seconds, or a {seconds, nanos} object whose
// seconds may itself be a string as emitted by proto3 JSON.
type timeField struct {
	value pose.TimeOffset
	set   bool
}

func (tf *timeField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseDecimalSeconds(s)
		if err != nil {
			return err
		}
		tf.value, tf.set = v, true
	case '{':
		var pair struct {
			Seconds json.Number `json:"seconds"`
			Nanos   int32       `json:"nanos"`
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(&pair); err != nil {
			return fmt.Errorf("invalid time offset object: %w", err)
		}
		var secs int64
		if pair.Seconds != "" {
			n, err := strconv.ParseInt(pair.Seconds.String(), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seconds %q: %w", pair.Seconds, err)
			}
			secs = n
		}
		v, err := FromSecondsNanos(secs, pair.Nanos)
		if err != nil {
			return err
		}
		tf.value, tf.set = v, true
	default:
		v, err := ParseDecimalSeconds(string(b))
		if err != nil {
			return err
		}
		tf.value, tf.set = v, true
	}
	return nil
}
