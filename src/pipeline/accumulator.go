package pipeline

import (
	"math"

	"github.com/lost-woods/nistcheck/src/suite"
)

// Deciles is the number of histogram buckets p-values are sorted into.
const Deciles = 10

// SubtestAccumulator collects the p-value histogram and pass count of one
// sub-result of one test. The histogram total equals the number of blocks
// for which the sub-result was produced.
type SubtestAccumulator struct {
	Deciles [Deciles]int `json:"deciles"`
	Passed  float64      `json:"passed"`
}

// Samples is the histogram total.
func (a *SubtestAccumulator) Samples() int {
	n := 0
	for _, c := range a.Deciles {
		n += c
	}
	return n
}

func (a *SubtestAccumulator) add(o suite.Outcome) {
	if o.Pass {
		a.Passed++
	}
	a.Deciles[DecileIndex(o.PValue)]++
}

// DecileIndex maps a p-value to its bucket; p == 1 goes to the last bucket
// and anything below zero or NaN to the first.
func DecileIndex(p float64) int {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p >= 1:
		return Deciles - 1
	}
	return int(math.Floor(p * Deciles))
}

// TestAccumulator holds the sub-result accumulators of one test, grown on
// first observation and never shrunk.
type TestAccumulator struct {
	ID       suite.TestID         `json:"id"`
	Name     string               `json:"name"`
	Subtests []SubtestAccumulator `json:"subtests"`
}

// merge adds one evaluation's outcomes position by position.
func (t *TestAccumulator) merge(outcomes []suite.Outcome) {
	if len(outcomes) > len(t.Subtests) {
		grown := make([]SubtestAccumulator, len(outcomes))
		copy(grown, t.Subtests)
		t.Subtests = grown
	}
	for i, o := range outcomes {
		t.Subtests[i].add(o)
	}
}

// Accumulators is the raw result of a completed run.
type Accumulators struct {
	Tests   []TestAccumulator `json:"tests"`
	Blocks  int               `json:"blocks"`
	Skipped int               `json:"skipped"`
}

func newAccumulators(descs []suite.Descriptor) *Accumulators {
	acc := &Accumulators{Tests: make([]TestAccumulator, len(descs))}
	for i, d := range descs {
		acc.Tests[i] = TestAccumulator{ID: d.ID, Name: d.Name}
	}
	return acc
}
