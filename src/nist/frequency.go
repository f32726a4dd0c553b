package nist

import (
	"fmt"
	"math"

	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/suite"
)

// Frequency is the monobit test.
func Frequency(block rng.Block, _ int) ([]suite.Outcome, error) {
	n := block.Len()
	if n == 0 {
		return nil, errEmptyBlock
	}

	s := 2*block.Ones() - n
	sObs := math.Abs(float64(s)) / math.Sqrt(float64(n))
	p := clampP(math.Erfc(sObs / math.Sqrt2))

	return []suite.Outcome{suite.Passed(p)}, nil
}

// BlockFrequency checks the proportion of ones inside m-bit blocks.
func BlockFrequency(block rng.Block, m int) ([]suite.Outcome, error) {
	n := block.Len()
	if m <= 0 {
		return nil, fmt.Errorf("block length must be positive, got %d", m)
	}
	blocks := n / m
	if blocks == 0 {
		return nil, fmt.Errorf("block length %d exceeds sequence length %d", m, n)
	}

	bits := block.Bits()
	sum := 0.0
	for i := 0; i < blocks; i++ {
		ones := 0
		for _, b := range bits[i*m : (i+1)*m] {
			ones += int(b)
		}
		v := float64(ones)/float64(m) - 0.5
		sum += v * v
	}
	chi := 4 * float64(m) * sum
	p := igamc(float64(blocks)/2, chi/2)

	return []suite.Outcome{suite.Passed(p)}, nil
}

// Runs checks the number of uninterrupted runs of identical bits.
func Runs(block rng.Block, _ int) ([]suite.Outcome, error) {
	n := block.Len()
	if n == 0 {
		return nil, errEmptyBlock
	}

	bits := block.Bits()
	pi := float64(block.Ones()) / float64(n)
	tau := 2 / math.Sqrt(float64(n))

	// Frequency prerequisite failed; the runs statistic is meaningless.
	if math.Abs(pi-0.5) >= tau {
		return []suite.Outcome{suite.Passed(0)}, nil
	}

	v := 1
	for k := 0; k < n-1; k++ {
		if bits[k] != bits[k+1] {
			v++
		}
	}

	num := math.Abs(float64(v) - 2*float64(n)*pi*(1-pi))
	den := 2 * math.Sqrt(2*float64(n)) * pi * (1 - pi)
	p := clampP(math.Erfc(num / den))

	return []suite.Outcome{suite.Passed(p)}, nil
}
