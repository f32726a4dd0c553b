package pipeline

import (
	"sync"
	"time"
)

// guarded is a single value behind its own lock.
type guarded[T any] struct {
	mu sync.RWMutex
	v  T
}

func (g *guarded[T]) Load() T {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.v
}

func (g *guarded[T]) Store(v T) {
	g.mu.Lock()
	g.v = v
	g.mu.Unlock()
}

func (g *guarded[T]) Update(f func(T) T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.v = f(g.v)
	return g.v
}

// State is the progress and cancellation bookkeeping of one run, shared by
// the pipeline (writer) and any monitor (reader). Each field has its own
// lock; there is no cross-field consistency.
type State struct {
	stop      guarded[bool]
	completed guarded[int]
	avgMillis guarded[uint64]
	target    guarded[int]
	elapsed   guarded[time.Duration]
}

func NewState() *State { return &State{} }

// Reset prepares the state for a new run of target blocks.
func (s *State) Reset(target int) {
	s.stop.Store(false)
	s.completed.Store(0)
	s.avgMillis.Store(0)
	s.target.Store(target)
	s.elapsed.Store(0)
}

// RequestStop asks the running pipeline to abort before its next block or
// test invocation.
func (s *State) RequestStop() { s.stop.Store(true) }

func (s *State) StopRequested() bool { return s.stop.Load() }

func (s *State) CompletedBlocks() int { return s.completed.Load() }

// AvgBlockMillis is the cumulative block time divided by completed blocks.
func (s *State) AvgBlockMillis() uint64 { return s.avgMillis.Load() }

func (s *State) TotalBlocks() int { return s.target.Load() }

func (s *State) Elapsed() time.Duration { return s.elapsed.Load() }

func (s *State) setElapsed(d time.Duration) { s.elapsed.Store(d) }

// blockDone records one finished block and the cumulative time spent in
// blocks so far.
func (s *State) blockDone(blockTime time.Duration) {
	n := s.completed.Update(func(n int) int { return n + 1 })
	s.avgMillis.Store(uint64(blockTime.Milliseconds()) / uint64(n))
}

// Progress is a read of every State field. The fields are read one at a
// time, so a Progress taken during a run may mix values from consecutive
// blocks.
type Progress struct {
	StopRequested   bool          `json:"stop_requested"`
	CompletedBlocks int           `json:"completed_blocks"`
	TotalBlocks     int           `json:"total_blocks"`
	AvgBlockMillis  uint64        `json:"avg_block_millis"`
	Elapsed         time.Duration `json:"elapsed"`
}

func (s *State) Snapshot() Progress {
	return Progress{
		StopRequested:   s.StopRequested(),
		CompletedBlocks: s.CompletedBlocks(),
		TotalBlocks:     s.TotalBlocks(),
		AvgBlockMillis:  s.AvgBlockMillis(),
		Elapsed:         s.Elapsed(),
	}
}

// Fraction is the completed share of the target in [0, 1].
func (p Progress) Fraction() float64 {
	if p.TotalBlocks <= 0 {
		return 0
	}
	f := float64(p.CompletedBlocks) / float64(p.TotalBlocks)
	if f > 1 {
		return 1
	}
	return f
}

// TimeLeft extrapolates the average block time over the remaining blocks.
func (p Progress) TimeLeft() time.Duration {
	left := p.TotalBlocks - p.CompletedBlocks
	if left <= 0 {
		return 0
	}
	return time.Duration(p.AvgBlockMillis) * time.Millisecond * time.Duration(left)
}
