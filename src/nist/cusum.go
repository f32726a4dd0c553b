package nist

import (
	"math"

	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/suite"
)

// CumulativeSums yields two sub-results: the forward and the backward walk.
func CumulativeSums(block rng.Block, _ int) ([]suite.Outcome, error) {
	n := block.Len()
	if n == 0 {
		return nil, errEmptyBlock
	}

	bits := block.Bits()
	var s, forward, backward int
	for _, b := range bits {
		s += 2*int(b) - 1
		forward = max(forward, abs(s))
	}
	s = 0
	for i := n - 1; i >= 0; i-- {
		s += 2*int(bits[i]) - 1
		backward = max(backward, abs(s))
	}

	return []suite.Outcome{
		suite.Passed(cusumP(n, forward)),
		suite.Passed(cusumP(n, backward)),
	}, nil
}

func cusumP(n, z int) float64 {
	if z == 0 {
		return 0
	}
	sqrtN := math.Sqrt(float64(n))
	zf := float64(z)

	sum1 := 0.0
	for k := (-n/z + 1) / 4; k <= (n/z-1)/4; k++ {
		kf := float64(k)
		sum1 += normalCDF((4*kf+1)*zf/sqrtN) - normalCDF((4*kf-1)*zf/sqrtN)
	}
	sum2 := 0.0
	for k := (-n/z - 3) / 4; k <= (n/z-1)/4; k++ {
		kf := float64(k)
		sum2 += normalCDF((4*kf+3)*zf/sqrtN) - normalCDF((4*kf+1)*zf/sqrtN)
	}

	return clampP(1 - sum1 + sum2)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
