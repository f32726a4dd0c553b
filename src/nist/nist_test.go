package nist_test

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lost-woods/nistcheck/src/nist"
	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/suite"
)

// Reference values are the worked examples of NIST SP 800-22 rev 1a.
func TestReferenceExamples(t *testing.T) {
	cases := []struct {
		name  string
		test  suite.TestFunc
		bits  string
		param int
		want  []float64
	}{
		{"Frequency", nist.Frequency, "1011010101", 0, []float64{0.527089}},
		{"BlockFrequency", nist.BlockFrequency, "0110011010", 3, []float64{0.801252}},
		{"Runs", nist.Runs, "1001101011", 0, []float64{0.147232}},
		{"CumulativeSums", nist.CumulativeSums, "1011010111", 0, []float64{0.411659, 0.411659}},
		{"ApproximateEntropy", nist.ApproximateEntropy, "0100110101", 3, []float64{0.261961}},
		{"Serial", nist.Serial, "0011011101", 3, []float64{0.808792, 0.670320}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.test(rng.BlockFromString(tc.bits), tc.param)
			require.NoError(t, err)
			require.Len(t, out, len(tc.want))
			for i, want := range tc.want {
				assert.InDelta(t, want, out[i].PValue, 1e-6, "sub-result %d", i)
				assert.True(t, out[i].Pass, "sub-result %d", i)
			}
		})
	}
}

func TestFrequency_AllZeroFails(t *testing.T) {
	out, err := nist.Frequency(rng.BlockFromBytes(make([]byte, 1_000_000/8)), 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].Pass)
	assert.Zero(t, out[0].PValue)
}

func TestRuns_FrequencyPrerequisite(t *testing.T) {
	out, err := nist.Runs(rng.BlockFromString(strings.Repeat("1", 100)), 0)
	require.NoError(t, err)
	assert.False(t, out[0].Pass)
	assert.Zero(t, out[0].PValue)
}

func TestBlockFrequency_BlockLongerThanSequence(t *testing.T) {
	_, err := nist.BlockFrequency(rng.BlockFromString("0101"), 128)
	require.Error(t, err)
	assert.False(t, errors.Is(err, suite.ErrNotApplicable))
}

func TestLongestRunOfOnes(t *testing.T) {
	_, err := nist.LongestRunOfOnes(rng.BlockFromString(strings.Repeat("01", 60)), 0)
	require.Error(t, err, "sequences under 128 bits are rejected")

	out, err := nist.LongestRunOfOnes(randomBlock(1, 1<<13), 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.GreaterOrEqual(t, out[0].PValue, 0.0)
	assert.LessOrEqual(t, out[0].PValue, 1.0)

	// Every 8-bit block holds a run of 8 ones: all land in the top class.
	out, err = nist.LongestRunOfOnes(rng.BlockFromString(strings.Repeat("1", 128)), 0)
	require.NoError(t, err)
	assert.False(t, out[0].Pass)
}

func TestPatternLengthIsBounded(t *testing.T) {
	block := randomBlock(2, 4096)

	_, err := nist.ApproximateEntropy(block, 100)
	require.Error(t, err)

	_, err = nist.Serial(block, 128)
	require.Error(t, err)

	_, err = nist.Serial(block, 1)
	require.Error(t, err)
}

func TestRandomExcursionsVariant(t *testing.T) {
	_, err := nist.RandomExcursionsVariant(randomBlock(3, 1000), 0)
	require.ErrorIs(t, err, suite.ErrNotApplicable)

	// "10" repeated returns to zero every two steps: 1000 cycles, all
	// visits at state +1.
	out, err := nist.RandomExcursionsVariant(rng.BlockFromString(strings.Repeat("10", 1000)), 0)
	require.NoError(t, err)
	require.Len(t, out, 18)
	assert.InDelta(t, 1.0, out[9].PValue, 1e-12, "state +1 visited exactly J times")
	for i, o := range out {
		assert.GreaterOrEqual(t, o.PValue, 0.0, "state %d", i)
		assert.LessOrEqual(t, o.PValue, 1.0, "state %d", i)
	}
}

func TestRegistryDefaults(t *testing.T) {
	r := nist.Registry()
	descs := r.Snapshot()
	require.Len(t, descs, 8)
	assert.Equal(t, nist.IDFrequency, descs[0].ID)
	assert.Equal(t, 8, r.Enabled())

	bf, ok := r.Lookup(nist.IDBlockFrequency)
	require.True(t, ok)
	require.NotNil(t, bf.Param)
	assert.Equal(t, suite.Param{Min: 10, Max: 1000, Value: 128}, *bf.Param)
}

func TestBatteryOnPseudoRandomBlock(t *testing.T) {
	block := randomBlock(4, 100_000)
	for _, d := range nist.Registry().Snapshot() {
		out, err := d.Test.Evaluate(block, d.ParamValue())
		if errors.Is(err, suite.ErrNotApplicable) {
			continue
		}
		require.NoError(t, err, d.Name)
		require.NotEmpty(t, out, d.Name)
		for _, o := range out {
			assert.GreaterOrEqual(t, o.PValue, 0.0, d.Name)
			assert.LessOrEqual(t, o.PValue, 1.0, d.Name)
		}
	}
}

func randomBlock(seed int64, n int) rng.Block {
	r := rand.New(rand.NewSource(seed))
	bits := make([]byte, n)
	for i := range bits {
		bits[i] = byte(r.Intn(2))
	}
	return rng.BlockFromBits(bits)
}
