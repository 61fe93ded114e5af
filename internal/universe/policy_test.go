package universe

import (
	"testing"
	"time"

	"github.com/coldwine/intelwatch/pkg/intel"
)

func TestTierForWalksAscending(t *testing.T) {
	cases := []struct {
		elapsed time.Duration
		color   string
		ok      bool
	}{
		{0, "#FF0000", true},
		{239 * time.Second, "#FF0000", true},
		{240 * time.Second, "#FF9B0F", true},
		{599 * time.Second, "#FF9B0F", true},
		{600 * time.Second, "#FFFA0F", true},
		{900 * time.Second, "#FFFDA2", true},
		{1500 * time.Second, "#FFFFFF", true},
		{86400 * time.Second, "", false},
		{48 * time.Hour, "", false},
	}
	for _, tc := range cases {
		tier, ok := DefaultAlarmColors.TierFor(tc.elapsed)
		if ok != tc.ok {
			t.Errorf("TierFor(%v) ok = %v, want %v", tc.elapsed, ok, tc.ok)
			continue
		}
		if ok && tier.Color != tc.color {
			t.Errorf("TierFor(%v) color = %s, want %s", tc.elapsed, tier.Color, tc.color)
		}
	}
}

func TestTierForSystem(t *testing.T) {
	g, err := Build([]string{"X-1"}, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sys := g.System("X-1")
	now := time.Now()

	if _, ok := DefaultAlarmColors.TierForSystem(sys, now); ok {
		t.Error("unknown system should have no tier")
	}

	sys.SetStatus(intel.StatusAlarm, now.Add(-5*time.Minute))
	tier, ok := DefaultAlarmColors.TierForSystem(sys, now)
	if !ok {
		t.Fatal("expected a tier for a 5 minute old alarm")
	}
	if tier.Color != "#FF9B0F" {
		t.Errorf("color = %s, want orange", tier.Color)
	}

	sys.SetStatus(intel.StatusClear, now)
	if _, ok := DefaultAlarmColors.TierForSystem(sys, now); ok {
		t.Error("cleared system should have no alarm tier")
	}
}
