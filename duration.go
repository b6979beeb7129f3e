package gatewd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Duration unmarshals from either an integer (nanoseconds) or a Go
// duration string such as "300ms" or "1.5h". It is a standalone
// helper: the timeout_ms/retries.backoff_ms configuration fields are
// decoded as plain integers, and the connection pool's idle timeout is
// a fixed constant, so neither goes through this type.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("gatewd: empty duration")
	}

	if b[0] == '"' {
		s := strings.Trim(string(b), `"`)
		dur, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	}

	var ns int64
	if err := json.Unmarshal(b, &ns); err != nil {
		return fmt.Errorf("gatewd: parsing duration: %w", err)
	}
	*d = Duration(ns)
	return nil
}

// ParseDuration parses a Go duration string, additionally accepting a
// trailing "d" suffix for whole days (e.g. "2d"), which time.Duration
// itself does not support.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) > 1024 {
		return 0, fmt.Errorf("gatewd: duration string too long")
	}
	if strings.HasSuffix(s, "d") && !strings.HasSuffix(s, "ms") {
		days, err := time.ParseDuration(strings.TrimSuffix(s, "d") + "h")
		if err != nil {
			return 0, fmt.Errorf("gatewd: parsing duration %q: %w", s, err)
		}
		return days * 24, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("gatewd: parsing duration %q: %w", s, err)
	}
	return dur, nil
}
