package nist

import (
	"fmt"
	"math"

	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/suite"
)

// ApproximateEntropy compares the frequency of overlapping m and m+1 bit
// patterns.
func ApproximateEntropy(block rng.Block, m int) ([]suite.Outcome, error) {
	n := block.Len()
	if m < 1 {
		return nil, fmt.Errorf("pattern length must be positive, got %d", m)
	}
	if err := checkPattern("approximate entropy", m+1, n); err != nil {
		return nil, err
	}

	bits := block.Bits()
	apEn := phi(bits, m) - phi(bits, m+1)
	chi := 2 * float64(n) * (math.Ln2 - apEn)
	p := igamc(math.Ldexp(1, m-1), chi/2)

	return []suite.Outcome{suite.Passed(p)}, nil
}

func phi(bits []byte, m int) float64 {
	n := float64(len(bits))
	sum := 0.0
	for _, c := range patternCounts(bits, m) {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		sum += p * math.Log(p)
	}
	return sum
}

// Serial checks the uniformity of overlapping m-bit patterns and yields two
// sub-results (first and second differences of psi-squared).
func Serial(block rng.Block, m int) ([]suite.Outcome, error) {
	n := block.Len()
	if m < 2 {
		return nil, fmt.Errorf("pattern length must be at least 2, got %d", m)
	}
	if err := checkPattern("serial", m, n); err != nil {
		return nil, err
	}

	bits := block.Bits()
	psim0 := psiSquared(bits, m)
	psim1 := psiSquared(bits, m-1)
	psim2 := psiSquared(bits, m-2)

	del1 := psim0 - psim1
	del2 := psim0 - 2*psim1 + psim2

	return []suite.Outcome{
		suite.Passed(igamc(math.Ldexp(1, m-2), del1/2)),
		suite.Passed(igamc(math.Ldexp(1, m-3), del2/2)),
	}, nil
}

func psiSquared(bits []byte, m int) float64 {
	if m <= 0 {
		return 0
	}
	n := float64(len(bits))
	sum := 0.0
	for _, c := range patternCounts(bits, m) {
		sum += float64(c) * float64(c)
	}
	return math.Ldexp(sum, m)/n - n
}
