package rng

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
)

const healthSampleBytes = 256

// Health records the outcome of the most recent source check.
type Health struct {
	mu            sync.RWMutex
	ok            bool
	lastErr       string
	lastCheckedAt time.Time
}

func NewHealth() *Health { return &Health{ok: false} }

func (h *Health) Set(ok bool, errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ok = ok
	h.lastErr = errMsg
	h.lastCheckedAt = time.Now()
}

func (h *Health) Snapshot() (ok bool, errMsg string, t time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ok, h.lastErr, h.lastCheckedAt
}

// CheckSample performs a lightweight sanity check on the head of a stream.
// It cannot prove randomness, but detects a disconnected or stuck source
// before hours are spent testing it.
func CheckSample(buf []byte) error {
	if len(buf) < 8 {
		return fmt.Errorf("source sample too small (%d bytes)", len(buf))
	}

	// Trivial stuck check: all identical
	allSame := true
	for i := 1; i < len(buf); i++ {
		if buf[i] != buf[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("source appears stuck (all sampled bytes identical)")
	}

	// Excessive 32-bit repeats
	var prev uint32
	repeats := 0
	words := 0
	for i := 0; i+4 <= len(buf); i += 4 {
		w := binary.BigEndian.Uint32(buf[i : i+4])
		if words > 0 && w == prev {
			repeats++
		}
		prev = w
		words++
	}
	if words > 1 && repeats > (words-1)*3/4 {
		return errors.New("source appears stuck (32-bit words repeating excessively)")
	}

	// Too few distinct byte values
	distinct := make(map[byte]struct{}, 256)
	for _, b := range buf {
		distinct[b] = struct{}{}
	}
	if len(buf) >= healthSampleBytes && len(distinct) < 8 {
		return fmt.Errorf("source sample has too few distinct byte values (%d); suspicious", len(distinct))
	}

	return nil
}
