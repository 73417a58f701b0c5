package httputil

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// QueryFloat parses a finite float query parameter. ok is false when the
// parameter is absent or empty.
func QueryFloat(r *http.Request, key string) (v float64, ok bool, err error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, true, nil
}

// QueryInt parses an integer query parameter within [min, max], returning
// def when it is absent.
func QueryInt(r *http.Request, key string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", key, min, max, v)
	}
	return v, nil
}

// QueryDuration parses a positive duration query parameter. Both Go
// duration strings ("100ms") and bare seconds ("0.1") are accepted.
func QueryDuration(r *http.Request, key string, def time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || math.IsNaN(secs) || math.Abs(secs) >= math.MaxInt64/float64(time.Second) {
			return 0, fmt.Errorf("invalid %s: %q", key, raw)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}
