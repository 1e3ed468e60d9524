package strategy

import "math"

const (
	thirdSmallLong  = 1664
	thirdMediumLong = 4990
	thirdLargeLong  = 10240
	thirdStepLong   = 1280

	thirdSmallFloorKB = 60
	thirdLargeFloorKB = 100
)

// ThirdGear derives the plan from aspect ratio and absolute resolution.
// Dimensions are halved, quartered or divided by an integer multiple at fixed
// long-side thresholds; the budget grows with the resulting pixel area relative
// to a reference resolution and never falls below the bucket floor.
func ThirdGear(width, height, angle int) Plan {
	plan := Plan{Angle: angle, Gear: GearThird}
	if width <= 0 || height <= 0 {
		return plan
	}

	evenW := evenUp(width)
	evenH := evenUp(height)
	short, long := min(evenW, evenH), max(evenW, evenH)
	scale := float64(short) / float64(long)

	var outShort, outLong int
	var size float64

	switch {
	case scale > wideRatio && scale <= 1:
		switch {
		case long < thirdSmallLong:
			outShort, outLong = short, long
			size = float64(outShort*outLong) / math.Pow(thirdSmallLong, 2) * 150
			size = math.Max(size, thirdSmallFloorKB)
		case long < thirdMediumLong:
			outShort, outLong = short/2, long/2
			size = float64(outShort*outLong) / math.Pow(2495, 2) * 300
			size = math.Max(size, thirdSmallFloorKB)
		case long < thirdLargeLong:
			outShort, outLong = short/4, long/4
			size = float64(outShort*outLong) / math.Pow(2560, 2) * 300
			size = math.Max(size, thirdLargeFloorKB)
		default:
			multiple := max(1, long/thirdStepLong)
			outShort, outLong = short/multiple, long/multiple
			size = float64(outShort*outLong) / math.Pow(2560, 2) * 300
			size = math.Max(size, thirdLargeFloorKB)
		}
	case scale > 0.5:
		multiple := max(1, long/thirdStepLong)
		outShort, outLong = short/multiple, long/multiple
		size = float64(outShort*outLong) / (1440.0 * 2560.0) * 200
		size = math.Max(size, thirdLargeFloorKB)
	default:
		multiple := int(math.Ceil(float64(long) / (thirdStepLong / scale)))
		multiple = max(1, multiple)
		outShort, outLong = short/multiple, long/multiple
		size = float64(outShort*outLong) / (thirdStepLong * (thirdStepLong / scale)) * 500
		size = math.Max(size, thirdLargeFloorKB)
	}

	// back from short/long space to the source axes
	if evenW > evenH {
		plan.Width, plan.Height = outLong, outShort
	} else {
		plan.Width, plan.Height = outShort, outLong
	}
	plan.BudgetKB = int64(size)
	return plan
}

func evenUp(n int) int {
	if n%2 == 1 {
		return n + 1
	}
	return n
}
