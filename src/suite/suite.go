// Package suite defines the pluggable test capability and the ordered
// registry of test descriptors a run is configured from.
package suite

import (
	"errors"

	"github.com/lost-woods/nistcheck/src/rng"
)

// Alpha is the significance level every test in the battery decides
// pass/fail with. A sequence passes a test when its p-value is >= Alpha.
const Alpha = 0.01

// PassProbability is the expected pass rate of a test under the null
// hypothesis.
const PassProbability = 1 - Alpha

// ErrNotApplicable marks a test that cannot run on this block for reasons
// that are not worth reporting (e.g. too few cycles). The pipeline skips
// such results without logging them.
var ErrNotApplicable = errors.New("test not applicable to block")

// Outcome is a single sub-result of one evaluation.
type Outcome struct {
	Pass   bool
	PValue float64
}

// Test is one randomness test. Evaluate must be safe to call from several
// goroutines at once and must not modify the block. param is the current
// descriptor parameter value, or 0 when the test takes none.
//
// Any error other than ErrNotApplicable is treated as a diagnostic and
// logged with the test name.
type Test interface {
	Evaluate(block rng.Block, param int) ([]Outcome, error)
}

// TestFunc adapts a plain function to Test.
type TestFunc func(block rng.Block, param int) ([]Outcome, error)

func (f TestFunc) Evaluate(block rng.Block, param int) ([]Outcome, error) {
	return f(block, param)
}

// Passed maps a p-value to an Outcome using Alpha.
func Passed(p float64) Outcome {
	return Outcome{Pass: p >= Alpha, PValue: p}
}
