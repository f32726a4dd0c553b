package nist

import (
	"fmt"

	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/suite"
)

type longestRunTable struct {
	minBits int
	m       int
	// run lengths <= lowest fall in class 0, >= lowest+len(pi)-1 in the last.
	lowest int
	pi     []float64
}

// Ordered by decreasing minimum sequence length.
var longestRunTables = []longestRunTable{
	{minBits: 750000, m: 10000, lowest: 10,
		pi: []float64{0.0882, 0.2092, 0.2483, 0.1933, 0.1208, 0.0675, 0.0727}},
	{minBits: 6272, m: 128, lowest: 4,
		pi: []float64{0.1174, 0.2430, 0.2493, 0.1752, 0.1027, 0.1124}},
	{minBits: 128, m: 8, lowest: 1,
		pi: []float64{0.2148, 0.3672, 0.2305, 0.2305}},
}

// LongestRunOfOnes checks the longest run of ones within M-bit blocks.
func LongestRunOfOnes(block rng.Block, _ int) ([]suite.Outcome, error) {
	n := block.Len()

	var t *longestRunTable
	for i := range longestRunTables {
		if n >= longestRunTables[i].minBits {
			t = &longestRunTables[i]
			break
		}
	}
	if t == nil {
		return nil, fmt.Errorf("sequence of %d bits is shorter than 128", n)
	}

	bits := block.Bits()
	blocks := n / t.m
	classes := len(t.pi)
	v := make([]int, classes)

	for i := 0; i < blocks; i++ {
		longest, run := 0, 0
		for _, b := range bits[i*t.m : (i+1)*t.m] {
			if b == 1 {
				run++
				if run > longest {
					longest = run
				}
			} else {
				run = 0
			}
		}

		class := longest - t.lowest
		if class < 0 {
			class = 0
		}
		if class > classes-1 {
			class = classes - 1
		}
		v[class]++
	}

	chi := 0.0
	for i, pi := range t.pi {
		expected := float64(blocks) * pi
		d := float64(v[i]) - expected
		chi += d * d / expected
	}
	p := igamc(float64(classes-1)/2, chi/2)

	return []suite.Outcome{suite.Passed(p)}, nil
}
