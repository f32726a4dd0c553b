// Package pipeline drives a run block by block: each block is evaluated by
// every enabled test in parallel, and the next block is not read until all
// evaluations of the current one have been merged.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lost-woods/nistcheck/src/rng"
	"github.com/lost-woods/nistcheck/src/suite"
)

// ErrStopped is returned when a stop was requested before the last block.
// The accumulated statistics are discarded.
var ErrStopped = errors.New("run stopped")

// BlockReader yields consecutive blocks of the stream under test.
type BlockReader interface {
	Next() (rng.Block, error)
}

// Run evaluates state.TotalBlocks() blocks from src with the enabled
// descriptors and returns their accumulators. The stop flag (and ctx) is
// checked before every block and before every test invocation; a test
// already running is not interrupted.
//
// A block that cannot be read in full is logged and skipped: it counts as
// completed but contributes no samples.
func Run(ctx context.Context, src BlockReader, descs []suite.Descriptor, state *State, log *zap.SugaredLogger) (*Accumulators, error) {
	enabled := make([]suite.Descriptor, 0, len(descs))
	for _, d := range descs {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}

	acc := newAccumulators(enabled)
	target := state.TotalBlocks()
	limit := runtime.GOMAXPROCS(0)

	start := time.Now()
	var blockTime time.Duration
	for i := 0; i < target; i++ {
		if stopped(ctx, state) {
			return nil, ErrStopped
		}

		t0 := time.Now()
		block, err := src.Next()
		if err != nil {
			acc.Skipped++
			log.Warnw("Skipping block", "block", i, "error", err)
		} else {
			evaluate(ctx, i, block, enabled, acc, state, limit, log)
		}
		acc.Blocks++

		blockTime += time.Since(t0)
		state.blockDone(blockTime)
		state.setElapsed(time.Since(start))
	}

	return acc, nil
}

func evaluate(
	ctx context.Context,
	index int,
	block rng.Block,
	descs []suite.Descriptor,
	acc *Accumulators,
	state *State,
	limit int,
	log *zap.SugaredLogger,
) {
	var g errgroup.Group
	g.SetLimit(limit)

	for i := range descs {
		d := descs[i]
		// Each goroutine owns exactly one accumulator.
		ta := &acc.Tests[i]

		g.Go(func() error {
			if stopped(ctx, state) {
				return nil
			}

			outcomes, err := invoke(d, block)
			switch {
			case errors.Is(err, suite.ErrNotApplicable):
			case err != nil:
				log.Warnw("Test failed", "test", d.Name, "block", index, "error", err)
			default:
				ta.merge(outcomes)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// invoke turns a panicking test into an ordinary diagnostic.
func invoke(d suite.Descriptor, block rng.Block) (outcomes []suite.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcomes, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return d.Test.Evaluate(block, d.ParamValue())
}

func stopped(ctx context.Context, state *State) bool {
	return state.StopRequested() || ctx.Err() != nil
}
