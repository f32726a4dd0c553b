// Package nist implements a subset of the NIST SP 800-22 statistical tests
// as suite.Test capabilities and assembles the default registry.
package nist

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lost-woods/nistcheck/src/suite"
)

const (
	IDFrequency               suite.TestID = "Frequency"
	IDBlockFrequency          suite.TestID = "BlockFrequency"
	IDRuns                    suite.TestID = "Runs"
	IDLongestRunOfOnes        suite.TestID = "LongestRunOfOnes"
	IDCumulativeSums          suite.TestID = "CumulativeSums"
	IDApproximateEntropy      suite.TestID = "ApproximateEntropy"
	IDSerial                  suite.TestID = "Serial"
	IDRandomExcursionsVariant suite.TestID = "RandomExcursionsVariant"
)

// maxPatternBits bounds the pattern length of the template-counting tests so
// the count table stays allocatable.
const maxPatternBits = 24

var errEmptyBlock = errors.New("empty block")

// Registry returns the default battery, every test enabled.
func Registry() *suite.Registry {
	r, err := suite.NewRegistry(
		suite.Descriptor{ID: IDFrequency, Name: string(IDFrequency), Enabled: true,
			Test: suite.TestFunc(Frequency)},
		suite.Descriptor{ID: IDBlockFrequency, Name: string(IDBlockFrequency), Enabled: true,
			Param: &suite.Param{Min: 10, Max: 1000, Value: 128},
			Test:  suite.TestFunc(BlockFrequency)},
		suite.Descriptor{ID: IDRuns, Name: string(IDRuns), Enabled: true,
			Test: suite.TestFunc(Runs)},
		suite.Descriptor{ID: IDLongestRunOfOnes, Name: string(IDLongestRunOfOnes), Enabled: true,
			Test: suite.TestFunc(LongestRunOfOnes)},
		suite.Descriptor{ID: IDCumulativeSums, Name: string(IDCumulativeSums), Enabled: true,
			Test: suite.TestFunc(CumulativeSums)},
		suite.Descriptor{ID: IDApproximateEntropy, Name: string(IDApproximateEntropy), Enabled: true,
			Param: &suite.Param{Min: 2, Max: 100, Value: 10},
			Test:  suite.TestFunc(ApproximateEntropy)},
		suite.Descriptor{ID: IDSerial, Name: string(IDSerial), Enabled: true,
			Param: &suite.Param{Min: 2, Max: 128, Value: 16},
			Test:  suite.TestFunc(Serial)},
		suite.Descriptor{ID: IDRandomExcursionsVariant, Name: string(IDRandomExcursionsVariant), Enabled: true,
			Test: suite.TestFunc(RandomExcursionsVariant)},
	)
	if err != nil {
		// The table above is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// igamc is the upper regularized incomplete gamma function. Rounding can
// push a statistic slightly below zero; that is treated as zero.
func igamc(a, x float64) float64 {
	if math.IsNaN(x) || math.IsNaN(a) {
		return 0
	}
	if x <= 0 {
		return 1
	}
	if math.IsInf(x, 1) {
		return 0
	}
	return clampP(mathext.GammaIncRegComp(a, x))
}

func normalCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

func clampP(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

func checkPattern(name string, m, n int) error {
	if n == 0 {
		return errEmptyBlock
	}
	if m > maxPatternBits {
		return fmt.Errorf("%s: pattern length %d exceeds %d bits", name, m, maxPatternBits)
	}
	return nil
}

// patternCounts counts the overlapping m-bit patterns of bits, wrapping
// around the end of the sequence.
func patternCounts(bits []byte, m int) []int {
	counts := make([]int, 1<<m)
	n := len(bits)
	mask := (1 << m) - 1
	idx := 0
	for j := 0; j < m-1; j++ {
		idx = (idx << 1) | int(bits[j%n])
	}
	for i := 0; i < n; i++ {
		idx = ((idx << 1) | int(bits[(i+m-1)%n])) & mask
		counts[idx]++
	}
	return counts
}
