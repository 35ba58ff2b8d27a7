// Package outcome defines the shared error taxonomy used across every
// domain package: transient (retry), data-quality (degrade to fallback),
// safety-violation (hard stop), invariant (should never happen), and
// venue-semantic (exchange rejected the request) failures.
package outcome

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks a failure expected to resolve on retry: network
	// timeouts, rate limits, momentary exchange unavailability.
	ErrTransient = errors.New("outcome: transient failure")

	// ErrDataQuality marks a failure where inputs were present but too
	// stale, thin, or inconsistent to trust — callers should fall back to
	// a degraded estimate rather than treat it as fatal.
	ErrDataQuality = errors.New("outcome: data quality failure")

	// ErrSafetyViolation marks a hard stop: a risk or circuit-breaker check
	// failed and the caller must not proceed regardless of retry.
	ErrSafetyViolation = errors.New("outcome: safety violation")

	// ErrInvariant marks a condition the code assumes can never happen —
	// its presence indicates a bug, not a runtime condition to recover
	// from gracefully.
	ErrInvariant = errors.New("outcome: invariant violated")

	// ErrVenueSemantic marks an exchange-level rejection of a well-formed
	// request: insufficient margin, invalid reduce-only, post-only cross,
	// or similar business-rule rejections distinct from transport errors.
	ErrVenueSemantic = errors.New("outcome: venue rejected request")

	// ErrStrictModeBlocked marks an ATR (or other cost input) gate refusing
	// to proceed under strict mode because the best available source was a
	// hardcoded fallback, not live or recently observed data. Wraps
	// ErrDataQuality since it is a stricter policy on top of the same
	// underlying condition.
	ErrStrictModeBlocked = fmt.Errorf("%w: strict mode blocked on fallback source", ErrDataQuality)
)

// Wrap annotates err with msg while preserving errors.Is/As compatibility
// with the sentinel it wraps.
func Wrap(sentinel error, msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("%w: %s: %v", sentinel, msg, err)
}

// Is reports whether err is (or wraps) one of the taxonomy sentinels.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
