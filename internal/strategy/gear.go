package strategy

import (
	"fmt"
	"strings"
)

// Gear selects which sizing strategy computes a compression plan.
type Gear int

const (
	GearUnknown Gear = 0
	GearFirst   Gear = 1
	GearThird   Gear = 3
)

// DefaultGear is used when no gear is configured.
const DefaultGear = GearThird

// String returns the human-readable gear name.
func (g Gear) String() string {
	switch g {
	case GearFirst:
		return "first"
	case GearThird:
		return "third"
	default:
		return fmt.Sprintf("gear(%d)", int(g))
	}
}

// Known reports whether a strategy is defined for the gear.
func (g Gear) Known() bool {
	return g == GearFirst || g == GearThird
}

// SelectGear maps a caller supplied mode ("first", "third", "1", "3") to a Gear.
// An empty mode selects DefaultGear.
func SelectGear(mode string) (Gear, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "":
		return DefaultGear, nil
	case "first", "1", "first_gear":
		return GearFirst, nil
	case "third", "3", "third_gear":
		return GearThird, nil
	default:
		return GearUnknown, fmt.Errorf("unknown gear: %q (valid: first, third)", mode)
	}
}
