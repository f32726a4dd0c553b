package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lost-woods/nistcheck/src/pipeline"
	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/suite"
)

// counterReader yields blocks whose first byte is the block index.
type counterReader struct {
	next byte
}

func (r *counterReader) Next() (rng.Block, error) {
	buf := []byte{r.next, 0xA5}
	r.next++
	return rng.BlockFromBytes(buf), nil
}

// firstByte recovers the block index written by counterReader.
func firstByte(b rng.Block) int {
	v := 0
	for i := 0; i < 8; i++ {
		v = v<<1 | int(b.Bit(i))
	}
	return v
}

func descriptor(id string, f suite.TestFunc) suite.Descriptor {
	return suite.Descriptor{ID: suite.TestID(id), Name: id, Enabled: true, Test: f}
}

func newState(target int) *pipeline.State {
	s := pipeline.NewState()
	s.Reset(target)
	return s
}

func nopLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestDecileIndex(t *testing.T) {
	cases := map[float64]int{
		0:      0,
		0.0999: 0,
		0.1:    1,
		0.55:   5,
		0.9:    9,
		0.9999: 9,
		1:      9,
		-0.5:   0,
	}
	for p, want := range cases {
		assert.Equal(t, want, pipeline.DecileIndex(p), "p=%v", p)
	}
}

func TestRun_HistogramCountsEveryProducedSample(t *testing.T) {
	const blocks = 40
	descs := []suite.Descriptor{
		descriptor("index", func(b rng.Block, _ int) ([]suite.Outcome, error) {
			p := float64(firstByte(b)%10) / 10
			return []suite.Outcome{{Pass: p >= 0.1, PValue: p}}, nil
		}),
		// Disabled tests get no accumulator.
		{ID: "off", Name: "off", Enabled: false, Test: suite.TestFunc(func(rng.Block, int) ([]suite.Outcome, error) {
			t.Error("disabled test invoked")
			return nil, nil
		})},
	}

	state := newState(blocks)
	acc, err := pipeline.Run(context.Background(), &counterReader{}, descs, state, nopLog())
	require.NoError(t, err)

	require.Len(t, acc.Tests, 1)
	sub := acc.Tests[0].Subtests
	require.Len(t, sub, 1)
	assert.Equal(t, [10]int{4, 4, 4, 4, 4, 4, 4, 4, 4, 4}, sub[0].Deciles)
	assert.Equal(t, blocks, sub[0].Samples())
	assert.Equal(t, float64(blocks-4), sub[0].Passed)
	assert.Equal(t, blocks, acc.Blocks)
	assert.Equal(t, blocks, state.CompletedBlocks())
}

func TestRun_SubtestsGrowOnFirstObservation(t *testing.T) {
	descs := []suite.Descriptor{
		descriptor("growing", func(b rng.Block, _ int) ([]suite.Outcome, error) {
			if firstByte(b) == 0 {
				return []suite.Outcome{{Pass: true, PValue: 0.5}}, nil
			}
			return []suite.Outcome{{Pass: true, PValue: 0.5}, {Pass: false, PValue: 0}, {Pass: true, PValue: 1}}, nil
		}),
	}

	acc, err := pipeline.Run(context.Background(), &counterReader{}, descs, newState(5), nopLog())
	require.NoError(t, err)

	sub := acc.Tests[0].Subtests
	require.Len(t, sub, 3)
	assert.Equal(t, 5, sub[0].Samples())
	assert.Equal(t, 4, sub[1].Samples())
	assert.Equal(t, 4, sub[2].Samples())
	assert.Equal(t, 4, sub[2].Deciles[9], "p-value 1 lands in the last bucket")
	assert.Zero(t, sub[1].Passed)
}

func TestRun_TestErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core).Sugar()

	descs := []suite.Descriptor{
		descriptor("loud", func(b rng.Block, _ int) ([]suite.Outcome, error) {
			if firstByte(b)%2 == 0 {
				return nil, errors.New("sequence too short")
			}
			return []suite.Outcome{{Pass: true, PValue: 0.3}}, nil
		}),
		descriptor("quiet", func(rng.Block, int) ([]suite.Outcome, error) {
			return nil, suite.ErrNotApplicable
		}),
		descriptor("panicky", func(rng.Block, int) ([]suite.Outcome, error) {
			panic("boom")
		}),
	}

	acc, err := pipeline.Run(context.Background(), &counterReader{}, descs, newState(6), log)
	require.NoError(t, err)

	assert.Equal(t, 3, acc.Tests[0].Subtests[0].Samples())
	assert.Empty(t, acc.Tests[1].Subtests)
	assert.Empty(t, acc.Tests[2].Subtests)

	failed := logs.FilterMessage("Test failed")
	assert.Equal(t, 3, failed.FilterField(zap.String("test", "loud")).Len())
	assert.Equal(t, 0, failed.FilterField(zap.String("test", "quiet")).Len())
	assert.Equal(t, 6, failed.FilterField(zap.String("test", "panicky")).Len())
}

func TestRun_ShortReadSkipsBlock(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	// Two full 16-bit blocks and one trailing byte.
	src, err := rng.NewBlockSource("mem", bytes.NewReader([]byte{1, 2, 3, 4, 5}), 16)
	require.NoError(t, err)

	var calls atomic.Int32
	descs := []suite.Descriptor{
		descriptor("count", func(b rng.Block, _ int) ([]suite.Outcome, error) {
			calls.Add(1)
			assert.Equal(t, 16, b.Len())
			return []suite.Outcome{{Pass: true, PValue: 0.5}}, nil
		}),
	}

	state := newState(4)
	acc, err := pipeline.Run(context.Background(), src, descs, state, zap.New(core).Sugar())
	require.NoError(t, err)

	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 2, acc.Tests[0].Subtests[0].Samples())
	assert.Equal(t, 2, acc.Skipped)
	assert.Equal(t, 4, acc.Blocks)
	assert.Equal(t, 4, state.CompletedBlocks())
	assert.Equal(t, 2, logs.FilterMessage("Skipping block").Len())
}

func TestRun_StopBetweenBlocks(t *testing.T) {
	state := newState(10)

	var calls atomic.Int32
	descs := []suite.Descriptor{
		descriptor("stopper", func(rng.Block, int) ([]suite.Outcome, error) {
			// Third block (index 2) asks for a stop; it still completes.
			if calls.Add(1) == 3 {
				state.RequestStop()
			}
			return []suite.Outcome{{Pass: true, PValue: 0.5}}, nil
		}),
	}

	acc, err := pipeline.Run(context.Background(), &counterReader{}, descs, state, nopLog())
	require.ErrorIs(t, err, pipeline.ErrStopped)
	assert.Nil(t, acc)
	assert.Equal(t, 3, state.CompletedBlocks())
	assert.EqualValues(t, 3, calls.Load())
	assert.True(t, state.StopRequested())
}

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	acc, err := pipeline.Run(ctx, &counterReader{}, nil, newState(3), nopLog())
	require.ErrorIs(t, err, pipeline.ErrStopped)
	assert.Nil(t, acc)
}

func TestRun_DeterministicUnderScheduling(t *testing.T) {
	jitter := func(seed int64) suite.TestFunc {
		var calls atomic.Int64
		return func(b rng.Block, _ int) ([]suite.Outcome, error) {
			// Vary how long each test takes so goroutines finish in a
			// different order from block to block.
			time.Sleep(time.Duration(calls.Add(1)*seed%3) * time.Millisecond)
			p := float64((firstByte(b)*int(seed))%10) / 10
			return []suite.Outcome{{Pass: p > 0.2, PValue: p}, {Pass: true, PValue: 1 - p}}, nil
		}
	}

	run := func() *pipeline.Accumulators {
		descs := []suite.Descriptor{
			descriptor("a", jitter(1)),
			descriptor("b", jitter(3)),
			descriptor("c", jitter(7)),
		}
		acc, err := pipeline.Run(context.Background(), &counterReader{}, descs, newState(25), nopLog())
		require.NoError(t, err)
		return acc
	}

	first, second := run(), run()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("accumulators differ between runs (-first +second):\n%s", diff)
	}
}

func TestJob_PollDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	descs := []suite.Descriptor{
		descriptor("gate", func(rng.Block, int) ([]suite.Outcome, error) {
			<-release
			return []suite.Outcome{{Pass: true, PValue: 0.5}}, nil
		}),
	}

	job := pipeline.Start(context.Background(), &counterReader{}, descs, newState(1), nopLog())

	_, ok := job.Poll(0)
	assert.False(t, ok)
	_, ok = job.Poll(time.Millisecond)
	assert.False(t, ok)

	close(release)
	res, ok := job.Poll(5 * time.Second)
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Acc.Blocks)

	_, ok = job.Poll(0)
	assert.False(t, ok, "the result is delivered once")
}

func TestJob_WaitTakesResultOnce(t *testing.T) {
	descs := []suite.Descriptor{
		descriptor("ok", func(rng.Block, int) ([]suite.Outcome, error) {
			return []suite.Outcome{{Pass: true, PValue: 0.5}}, nil
		}),
	}
	job := pipeline.Start(context.Background(), &counterReader{}, descs, newState(2), nopLog())

	res, ok := job.Wait()
	require.True(t, ok)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Acc.Blocks)

	_, ok = job.Wait()
	assert.False(t, ok, "a taken result is not handed out again")
	_, ok = job.Poll(0)
	assert.False(t, ok)
}

func TestState_Progress(t *testing.T) {
	s := pipeline.NewState()
	s.Reset(10)
	s.RequestStop()
	s.Reset(8)

	p := s.Snapshot()
	assert.False(t, p.StopRequested)
	assert.Equal(t, 8, p.TotalBlocks)
	assert.Zero(t, p.Fraction())

	p = pipeline.Progress{CompletedBlocks: 3, TotalBlocks: 8, AvgBlockMillis: 200}
	assert.Equal(t, time.Second, p.TimeLeft())
	assert.InDelta(t, 0.375, p.Fraction(), 1e-12)

	p = pipeline.Progress{CompletedBlocks: 9, TotalBlocks: 8}
	assert.Zero(t, p.TimeLeft())
	assert.Equal(t, 1.0, p.Fraction())
}
