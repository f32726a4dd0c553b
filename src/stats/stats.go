// Package stats turns the accumulators of a completed run into per-sub-test
// verdicts: a chi-square test of the p-value histogram for uniformity and a
// check of the pass proportion against its confidence band.
package stats

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mathext"

	"github.com/lost-woods/nistcheck/src/pipeline"
	"github.com/lost-woods/nistcheck/src/suite"
)

// MinUniformityPValue is the chi-square p-value below which the p-value
// histogram of a sub-test is considered non-uniform.
const MinUniformityPValue = 0.0001

// SubtestResult is the verdict of one sub-result of one test.
type SubtestResult struct {
	TestID          suite.TestID          `json:"test_id"`
	Name            string                `json:"name"`
	Index           int                   `json:"index"`
	Deciles         [pipeline.Deciles]int `json:"deciles"`
	SampleSize      int                   `json:"sample_size"`
	ChiSquarePValue float64               `json:"chi_square_pvalue"`
	PassRatio       float64               `json:"pass_ratio"`
	BandMin         float64               `json:"band_min"`
	BandMax         float64               `json:"band_max"`
	Passed          bool                  `json:"passed"`
}

// Report is the outcome of a completed run.
type Report struct {
	Subtests []SubtestResult `json:"subtests"`
	// Deciles is the sum of every sub-test histogram.
	Deciles [pipeline.Deciles]int `json:"deciles"`
	// BandMin and BandMax average the proportion bands of the sub-tests.
	BandMin float64 `json:"band_min"`
	BandMax float64 `json:"band_max"`
	Failed  int     `json:"failed"`
	Text    string  `json:"text"`
}

// ProportionBand is the acceptable range of the pass ratio over n samples:
// three standard deviations of the binomial proportion around the expected
// pass rate.
func ProportionBand(n int) (lo, hi float64) {
	pa := suite.PassProbability
	r := 3 * math.Sqrt(pa*(1-pa)/float64(n))
	return pa - r, pa + r
}

// ChiSquarePValue tests the histogram for uniformity over its ten buckets
// (nine degrees of freedom). It is 0 when the histogram holds fewer than ten
// samples.
func ChiSquarePValue(deciles [pipeline.Deciles]int) float64 {
	n := 0
	for _, c := range deciles {
		n += c
	}
	expected := n / pipeline.Deciles
	if expected == 0 {
		return 0
	}

	chi := 0.0
	for _, c := range deciles {
		d := float64(c - expected)
		chi += d * d
	}
	chi /= float64(expected)

	if math.IsNaN(chi) || math.IsInf(chi, 0) {
		return 0
	}
	p := mathext.GammaIncRegComp((pipeline.Deciles-1)/2.0, chi/2)
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Aggregate evaluates every sub-test of acc. It does not modify acc and
// returns the same report for the same input.
func Aggregate(acc *pipeline.Accumulators) *Report {
	r := &Report{}
	var mins, maxs []float64

	for _, t := range acc.Tests {
		for i := range t.Subtests {
			sub := &t.Subtests[i]
			res := SubtestResult{
				TestID:  t.ID,
				Name:    t.Name,
				Index:   i,
				Deciles: sub.Deciles,
			}
			res.SampleSize = sub.Samples()

			for j, c := range sub.Deciles {
				r.Deciles[j] += c
			}

			// The pipeline never produces an empty sub-test, but an empty
			// one cannot pass and has no band.
			if res.SampleSize == 0 {
				r.Failed++
				r.Subtests = append(r.Subtests, res)
				continue
			}

			res.BandMin, res.BandMax = ProportionBand(res.SampleSize)
			mins = append(mins, res.BandMin)
			maxs = append(maxs, res.BandMax)

			res.ChiSquarePValue = ChiSquarePValue(sub.Deciles)
			res.PassRatio = sub.Passed / float64(res.SampleSize)
			res.Passed = res.PassRatio >= res.BandMin &&
				res.PassRatio <= res.BandMax &&
				res.ChiSquarePValue >= MinUniformityPValue
			if !res.Passed {
				r.Failed++
			}

			r.Subtests = append(r.Subtests, res)
		}
	}

	// Without a non-empty sub-test there is no band; it stays at zero.
	if len(mins) > 0 {
		r.BandMin, _ = stats.Mean(mins)
		r.BandMax, _ = stats.Mean(maxs)
	}

	r.Text = Render(r)
	return r
}

// PassRatios lists the pass ratio of every sub-test in report order.
func (r *Report) PassRatios() []float64 {
	out := make([]float64, len(r.Subtests))
	for i, s := range r.Subtests {
		out[i] = s.PassRatio
	}
	return out
}
