// Package metrics computes line-efficiency figures (quality, performance,
// theoretical output) from grouped production counts.
package metrics

import (
	"time"

	"github.com/ersozo/re-dashboard/internal/domain"
)

// LiveGrace is the window after a requested end during which "now" is still
// treated as the advancing boundary. It is the sole live/historical
// discriminator in the system.
const LiveGrace = 5 * time.Minute

// ResolveEffectiveEnd decides whether a window is live or historical.
// A zero now means no reference instant: the window is historical and its
// requested end is authoritative. A live window's end is clamped so it never
// precedes the window start.
func ResolveEffectiveEnd(w domain.TimeWindow, now time.Time) (time.Time, bool) {
	if now.IsZero() {
		return w.End, false
	}
	delta := now.Sub(w.End)
	if delta < 0 || delta > LiveGrace {
		return w.End, false
	}
	end := now
	if end.Before(w.Start) {
		end = w.Start
	}
	return end, true
}
