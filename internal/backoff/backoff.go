// Package backoff computes the wait between delivery retries, honouring
// server-supplied retry hints when present and falling back to an
// exponential schedule otherwise.
//
// The shape mirrors the teacher's broker write/read loops (constant base
// backoff, capped at a max, reset on success) but is expressed as a pure
// function of (attempt, error) rather than mutable loop state, per the
// delivery loop in internal/vchannel.
package backoff

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Defaults, per spec §4.4.
const (
	DefaultMinWait     = 5 * time.Second
	DefaultMaxWait     = 7200 * time.Second
	DefaultBase        = 4.0
	DefaultMaxAttempts = 5
)

// ErrParse is returned by ParseRetryAfter when the input cannot be
// interpreted as an integer, a float, or one of the three recognised
// HTTP-date shapes.
var ErrParse = errors.New("backoff: could not parse retry hint")

// Policy computes wait(attempt, lastError) -> time.Duration.
type Policy struct {
	MinWait     time.Duration
	MaxWait     time.Duration
	Base        float64
	MaxAttempts int
}

// New builds a Policy, substituting the spec defaults for zero or negative
// fields (and for a base <= 1) so a caller can construct a Policy{} from
// partially-populated channel config.
func New(minWait, maxWait time.Duration, base float64, maxAttempts int) Policy {
	p := Policy{MinWait: minWait, MaxWait: maxWait, Base: base, MaxAttempts: maxAttempts}
	if p.MinWait <= 0 {
		p.MinWait = DefaultMinWait
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultMaxWait
	}
	if p.Base <= 1 {
		p.Base = DefaultBase
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// Default returns the spec's default policy (5s/7200s/base4/5 attempts).
func Default() Policy {
	return New(DefaultMinWait, DefaultMaxWait, DefaultBase, DefaultMaxAttempts)
}

// Wait implements the algorithm in spec §4.4:
//  1. default = min_wait + base^attempt, saturated at max_wait on overflow
//  2. a parseable, non-negative hint overrides the default
//  3. result is min(chosen, max_wait)
//
// hint is the raw retry-hint value carried by a WorkerAwaitError (nil, an
// int, a float64, or a string); see ParseRetryAfter for the accepted shapes.
func (p Policy) Wait(attempt int, hint any) time.Duration {
	chosen := p.exponential(attempt)

	if hint != nil {
		if seconds, err := ParseRetryAfter(hint, time.Now()); err == nil && seconds >= 0 {
			chosen = time.Duration(seconds) * time.Second
		}
	}

	if chosen > p.MaxWait {
		chosen = p.MaxWait
	}
	return chosen
}

func (p Policy) exponential(attempt int) time.Duration {
	pow := math.Pow(p.Base, float64(attempt))
	if math.IsInf(pow, 1) || pow > float64(p.MaxWait) {
		return p.MaxWait
	}

	total := p.MinWait + time.Duration(pow)*time.Second
	if total < 0 || total > p.MaxWait { // overflow or exceeds cap
		return p.MaxWait
	}
	return total
}

// layoutGMT and layoutTZ cover the three shapes spec §4.5 distinguishes:
// GMT uses layoutGMT (parsed against the local clock, historical quirk of
// the source); UTC (the literal "UTC" suffix rewritten to "+0000") and a
// general RFC 1123 numeric-offset date both use layoutTZ.
const (
	layoutGMT = "Mon, 02 Jan 2006 15:04:05 GMT"
	layoutTZ  = "Mon, 02 Jan 2006 15:04:05 -0700"
)

// ParseRetryAfter parses a retry hint into a non-negative number of
// seconds, relative to now. Accepts:
//   - an int or float (truncated to seconds, non-negative)
//   - a string ending in "GMT", parsed with the local clock
//   - a string ending in "UTC" (rewritten to "+0000"), parsed as UTC
//   - any other string, parsed as an RFC-1123-style date with a numeric zone
//
// Parse failures return ErrParse; the caller (backoff.Policy.Wait) falls
// back to the exponential default in that case.
func ParseRetryAfter(hint any, now time.Time) (int, error) {
	switch v := hint.(type) {
	case int:
		if v < 0 {
			return 0, nil
		}
		return v, nil
	case int64:
		return ParseRetryAfter(int(v), now)
	case float64:
		if v < 0 {
			return 0, nil
		}
		return int(v), nil
	case string:
		return parseRetryAfterString(v, now)
	default:
		return 0, ErrParse
	}
}

func parseRetryAfterString(raw string, now time.Time) (int, error) {
	s := strings.TrimSpace(raw)

	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, nil
		}
		return n, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f < 0 {
			return 0, nil
		}
		return int(f), nil
	}

	var target time.Time
	var err error

	switch {
	case strings.HasSuffix(s, "GMT"):
		target, err = time.ParseInLocation(layoutGMT, s, time.Local)
		if err == nil {
			diff := target.Sub(now.In(time.Local))
			return clampCeil(diff), nil
		}
	case strings.HasSuffix(s, "UTC"):
		rewritten := strings.TrimSuffix(s, "UTC") + "+0000"
		target, err = time.Parse(layoutTZ, rewritten)
		if err == nil {
			diff := target.Sub(now.UTC())
			return clampCeil(diff), nil
		}
	default:
		target, err = time.Parse(layoutTZ, s)
		if err == nil {
			diff := target.Sub(now.UTC())
			return clampCeil(diff), nil
		}
	}

	return 0, ErrParse
}

func clampCeil(d time.Duration) int {
	seconds := math.Ceil(d.Seconds())
	if seconds < 0 {
		return 0
	}
	return int(seconds)
}
