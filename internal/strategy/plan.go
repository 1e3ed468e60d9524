package strategy

import "fmt"

// Plan is the target geometry and byte budget for one compression request.
// Width and Height are expressed in the source's stored (pre-rotation) axes.
type Plan struct {
	Width    int   `json:"width" yaml:"width"`
	Height   int   `json:"height" yaml:"height"`
	BudgetKB int64 `json:"budget_kb" yaml:"budget_kb"`
	Angle    int   `json:"angle" yaml:"angle"`
	Gear     Gear  `json:"gear" yaml:"gear"`
}

// Valid reports whether the plan has a non-zero target area.
func (p Plan) Valid() bool {
	return p.Width > 0 && p.Height > 0
}

func (p Plan) String() string {
	return fmt.Sprintf("%dx%d budget=%dKB angle=%d gear=%s", p.Width, p.Height, p.BudgetKB, p.Angle, p.Gear)
}

// For computes the plan for a source of the given dimensions, byte size and
// orientation angle using the strategy selected by gear. The boolean is false
// when no strategy is defined for gear.
func For(width, height int, size int64, angle int, gear Gear) (Plan, bool) {
	switch gear {
	case GearFirst:
		return FirstGear(width, height, size, angle), true
	case GearThird:
		return ThirdGear(width, height, angle), true
	default:
		return Plan{}, false
	}
}
