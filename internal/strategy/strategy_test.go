package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectGear(t *testing.T) {
	cases := map[string]Gear{
		"":           DefaultGear,
		"first":      GearFirst,
		"1":          GearFirst,
		"THIRD":      GearThird,
		" 3 ":        GearThird,
		"third_gear": GearThird,
	}
	for mode, want := range cases {
		got, err := SelectGear(mode)
		require.NoError(t, err, mode)
		assert.Equal(t, want, got, mode)
	}

	_, err := SelectGear("second")
	assert.Error(t, err)
}

func TestFirstGear(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		size         int64
		wantW, wantH int
		wantBudget   int64
	}{
		{"small square keeps size", 100, 100, 50 * 1024, 100, 100, 60},
		{"portrait near-square clamps short side", 3000, 4000, 5 << 20, 1280, 1706, 60},
		{"landscape near-square clamps short side", 4000, 3000, 5 << 20, 1706, 1280, 60},
		{"small landscape untouched", 500, 400, 40 * 1024, 500, 400, 60},
		{"portrait elongated clamps long side", 1000, 3000, 3000000, 240, 720, 585},
		{"landscape elongated clamps long side", 3000, 1000, 3000000, 720, 240, 585},
		{"9:16 boundary is elongated", 720, 1280, 512000, 405, 720, 100},
		{"extreme strip keeps one pixel", 100, 1, 1024, 100, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := FirstGear(tt.w, tt.h, tt.size, 90)
			assert.Equal(t, tt.wantW, plan.Width)
			assert.Equal(t, tt.wantH, plan.Height)
			assert.Equal(t, tt.wantBudget, plan.BudgetKB)
			assert.Equal(t, 90, plan.Angle)
			assert.Equal(t, GearFirst, plan.Gear)
		})
	}
}

func TestFirstGearNearSquareBudget(t *testing.T) {
	for w := 600; w <= 6000; w += 397 {
		for h := w; float64(w)/float64(h) > wideRatio; h += 311 {
			for _, dims := range [][2]int{{w, h}, {h, w}} {
				plan := FirstGear(dims[0], dims[1], 1<<20, 0)
				assert.Equal(t, int64(60), plan.BudgetKB)
				assert.LessOrEqual(t, min(plan.Width, plan.Height), firstShortSide)
				assert.True(t, plan.Valid())
			}
		}
	}
}

func TestFirstGearInvalidDimensions(t *testing.T) {
	plan := FirstGear(0, 100, 1000, 0)
	assert.False(t, plan.Valid())
}

func TestThirdGear(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
		wantBudget   int64
	}{
		{"small square hits floor", 100, 100, 100, 100, 60},
		{"odd sides are evened", 1001, 1001, 1002, 1002, 60},
		{"below first threshold", 1200, 1600, 1200, 1600, 104},
		{"halved portrait", 3000, 4000, 1500, 2000, 144},
		{"halved landscape keeps axes", 4000, 3000, 2000, 1500, 144},
		{"quartered", 6000, 8000, 1500, 2000, 137},
		{"divided by multiple", 12000, 16000, 1000, 1333, 100},
		{"16:9 bucket", 1440, 2560, 720, 1280, 100},
		{"16:9 bucket small", 1400, 2500, 1400, 2500, 189},
		{"very elongated unchanged", 10000, 1000, 10000, 1000, 305},
		{"very elongated divided", 2000, 5000, 1000, 2500, 305},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := ThirdGear(tt.w, tt.h, 0)
			assert.Equal(t, tt.wantW, plan.Width)
			assert.Equal(t, tt.wantH, plan.Height)
			assert.Equal(t, tt.wantBudget, plan.BudgetKB)
			assert.Equal(t, GearThird, plan.Gear)
		})
	}
}

func TestThirdGearOutputsAreDividedSource(t *testing.T) {
	for w := 1; w <= 20000; w += 1733 {
		for h := 1; h <= 20000; h += 1499 {
			plan := ThirdGear(w, h, 0)
			require.True(t, plan.Valid(), "%dx%d", w, h)

			ew, eh := evenUp(w), evenUp(h)
			assert.LessOrEqual(t, plan.Width, ew)
			assert.LessOrEqual(t, plan.Height, eh)
			assert.GreaterOrEqual(t, plan.BudgetKB, int64(thirdSmallFloorKB))

			// orientation is preserved
			if ew > eh {
				assert.GreaterOrEqual(t, plan.Width, plan.Height)
			} else {
				assert.LessOrEqual(t, plan.Width, plan.Height)
			}
		}
	}
}

func TestFor(t *testing.T) {
	plan, ok := For(3000, 4000, 5<<20, 180, GearThird)
	require.True(t, ok)
	assert.Equal(t, ThirdGear(3000, 4000, 180), plan)

	plan, ok = For(100, 100, 50*1024, 0, GearFirst)
	require.True(t, ok)
	assert.Equal(t, int64(60), plan.BudgetKB)

	_, ok = For(100, 100, 1, 0, Gear(2))
	assert.False(t, ok)
}
