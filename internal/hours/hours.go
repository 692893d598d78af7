// Package hours provides market-session predicates over "HH:MM" boundary
// strings. Timestamps are assumed to already be in the exchange's local
// session time; no timezone conversion is performed.
package hours

import (
	"fmt"
	"time"

	"paperback/internal/domain"
)

// clock extracts the zero-padded "HH:MM" wall-clock string from t. Session
// boundaries are compared lexicographically against this form, which orders
// correctly for zero-padded 24-hour times.
func clock(t time.Time) string {
	return t.Format("15:04")
}

// IsMarketHours reports whether ts falls inside the regular session. The open
// boundary is inclusive and the close boundary exclusive: with
// MarketOpen="09:30" and MarketClose="16:00", 09:30 is in-session and 16:00
// is not.
func IsMarketHours(ts time.Time, h domain.MarketHours) bool {
	c := clock(ts)
	return c >= h.MarketOpen && c < h.MarketClose
}

// IsPreMarketHours reports whether ts falls in the pre-market window
// [PreMarketStart, MarketOpen).
func IsPreMarketHours(ts time.Time, h domain.MarketHours) bool {
	c := clock(ts)
	return c >= h.PreMarketStart && c < h.MarketOpen
}

// IsAfterHours reports whether ts falls in the after-hours window
// [MarketClose, AfterHoursEnd).
func IsAfterHours(ts time.Time, h domain.MarketHours) bool {
	c := clock(ts)
	return c >= h.MarketClose && c < h.AfterHoursEnd
}

// NextMarketClose returns the first market close at or after ts: today's
// close if ts precedes it, otherwise tomorrow's.
func NextMarketClose(ts time.Time, h domain.MarketHours) (time.Time, error) {
	var hh, mm int
	if _, err := fmt.Sscanf(h.MarketClose, "%d:%d", &hh, &mm); err != nil {
		return time.Time{}, fmt.Errorf("parsing market close %q: %w", h.MarketClose, err)
	}
	closeAt := time.Date(ts.Year(), ts.Month(), ts.Day(), hh, mm, 0, 0, ts.Location())
	if !ts.Before(closeAt) {
		closeAt = closeAt.AddDate(0, 0, 1)
	}
	return closeAt, nil
}

// TimeToMarketClose returns the whole minutes remaining from ts to the next
// market close, floor-rounded and clamped to >= 0.
func TimeToMarketClose(ts time.Time, h domain.MarketHours) int {
	closeAt, err := NextMarketClose(ts, h)
	if err != nil {
		return 0
	}
	mins := int(closeAt.Sub(ts).Minutes())
	if mins < 0 {
		return 0
	}
	return mins
}
