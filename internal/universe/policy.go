package universe

import (
	"time"

	"github.com/coldwine/intelwatch/pkg/intel"
)

// Tier is one step of the alarm decay ladder: while the elapsed time
// since the alarm is below MaxAge, the system renders with this tier's
// colors.
type Tier struct {
	MaxAge    time.Duration
	Color     string
	TextColor string
}

// ColorPolicy is an ordered tier table, ascending by MaxAge.
type ColorPolicy []Tier

// DefaultAlarmColors is the decay ladder from freshly alarmed (red)
// down to a day-old stale report (white).
var DefaultAlarmColors = ColorPolicy{
	{MaxAge: 240 * time.Second, Color: "#FF0000", TextColor: "#FFFFFF"},
	{MaxAge: 600 * time.Second, Color: "#FF9B0F", TextColor: "#FFFFFF"},
	{MaxAge: 900 * time.Second, Color: "#FFFA0F", TextColor: "#000000"},
	{MaxAge: 1500 * time.Second, Color: "#FFFDA2", TextColor: "#000000"},
	{MaxAge: 86400 * time.Second, Color: "#FFFFFF", TextColor: "#000000"},
}

// TierFor walks the ladder and returns the first tier whose MaxAge the
// elapsed time has not reached. The bool is false when the alarm has
// decayed past the final tier; what to do then (fade to was-alarmed or
// unknown) is the renderer's call.
func (p ColorPolicy) TierFor(elapsed time.Duration) (Tier, bool) {
	for _, tier := range p {
		if elapsed < tier.MaxAge {
			return tier, true
		}
	}
	return Tier{}, false
}

// TierForSystem resolves the current tier of an alarmed system at the
// given instant. Systems without a running decay clock, or not in
// alarm, have no tier.
func (p ColorPolicy) TierForSystem(s *System, now time.Time) (Tier, bool) {
	if s.Status() != intel.StatusAlarm {
		return Tier{}, false
	}
	elapsed, ok := s.Elapsed(now)
	if !ok {
		return Tier{}, false
	}
	return p.TierFor(elapsed)
}
