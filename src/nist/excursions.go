package nist

import (
	"fmt"
	"math"

	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/suite"
)

// minCycles is the number of zero-crossing cycles below which the random
// excursion statistics are not meaningful.
const minCycles = 500

// excursionStates are the walk states visited, in output order.
var excursionStates = []int{-9, -8, -7, -6, -5, -4, -3, -2, -1, 1, 2, 3, 4, 5, 6, 7, 8, 9}

// RandomExcursionsVariant counts visits to each state of the cumulative-sum
// walk and yields one sub-result per state. Blocks with too few cycles are
// reported as suite.ErrNotApplicable.
func RandomExcursionsVariant(block rng.Block, _ int) ([]suite.Outcome, error) {
	n := block.Len()
	if n == 0 {
		return nil, errEmptyBlock
	}

	visits := make(map[int]int, len(excursionStates))
	cycles := 0
	s := 0
	for _, b := range block.Bits() {
		s += 2*int(b) - 1
		if s == 0 {
			cycles++
		} else if s >= -9 && s <= 9 {
			visits[s]++
		}
	}
	if s != 0 {
		cycles++
	}

	limit := max(minCycles, int(0.005*math.Sqrt(float64(n))))
	if cycles < limit {
		return nil, fmt.Errorf("%d cycles, need %d: %w", cycles, limit, suite.ErrNotApplicable)
	}

	j := float64(cycles)
	out := make([]suite.Outcome, 0, len(excursionStates))
	for _, x := range excursionStates {
		ax := float64(x)
		if x < 0 {
			ax = -ax
		}
		p := math.Erfc(math.Abs(float64(visits[x])-j) / math.Sqrt(2*j*(4*ax-2)))
		out = append(out, suite.Passed(clampP(p)))
	}
	return out, nil
}
