package strategy

const (
	firstMinSizeKB = 60
	firstLongSide  = 720
	firstShortSide = 1280

	// wideRatio is the 9:16 boundary between near-square and elongated images.
	wideRatio = 0.5625
)

// FirstGear caps the image by aspect-ratio bucket. Near-square images keep
// their short side at or below 1280px with a fixed 60KB budget; elongated
// images keep their long side at or below 720px with a budget of one fifth of
// the source size. size is the source size in bytes.
//
// A zero-area plan is returned when no bucket matches.
func FirstGear(width, height int, size int64, angle int) Plan {
	plan := Plan{Angle: angle, Gear: GearFirst}
	if width <= 0 || height <= 0 {
		return plan
	}

	maxSizeKB := size / 5 / 1024

	if width <= height {
		scale := float64(width) / float64(height)
		switch {
		case scale > wideRatio && scale <= 1.0:
			plan.Width = min(width, firstShortSide)
			plan.Height = plan.Width * height / width
			plan.BudgetKB = firstMinSizeKB
		case scale <= wideRatio:
			plan.Height = min(height, firstLongSide)
			plan.Width = max(1, plan.Height*width/height)
			plan.BudgetKB = maxSizeKB
		}
		return plan
	}

	scale := float64(height) / float64(width)
	switch {
	case scale > wideRatio && scale <= 1.0:
		plan.Height = min(height, firstShortSide)
		plan.Width = plan.Height * width / height
		plan.BudgetKB = firstMinSizeKB
	case scale <= wideRatio:
		plan.Width = min(width, firstLongSide)
		plan.Height = max(1, plan.Width*height/width)
		plan.BudgetKB = maxSizeKB
	}
	return plan
}
