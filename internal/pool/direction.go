package pool

import (
	"fmt"
	"strings"
)

// Direction selects the payoff and unit conversion of a pool.
type Direction int

const (
	// Call pools hold the asset as collateral and pay out when price rises.
	Call Direction = iota
	// Put pools hold the quote currency and pay out when price falls.
	Put
)

func (d Direction) String() string {
	switch d {
	case Call:
		return "call"
	case Put:
		return "put"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection accepts "call" or "put".
func ParseDirection(input string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "call":
		return Call, nil
	case "put":
		return Put, nil
	default:
		return 0, fmt.Errorf("unsupported direction: %q", input)
	}
}
