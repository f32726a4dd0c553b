package rng

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrShortBlock is returned by Next when the source could not fill a whole
// block. The partial data is discarded.
var ErrShortBlock = errors.New("short block read")

// BlockSource yields consecutive fixed-size blocks from a byte stream.
// It is not safe for concurrent use; the pipeline is its only reader.
type BlockSource struct {
	name       string
	r          *bufio.Reader
	closer     io.Closer
	size       int64
	blockBytes int
}

// NewBlockSource wraps r. Trailing bits of bitsPerBlock that do not fill a
// whole byte are dropped, so the effective block length is a multiple of 8.
func NewBlockSource(name string, r io.Reader, bitsPerBlock int) (*BlockSource, error) {
	if bitsPerBlock < 8 {
		return nil, fmt.Errorf("bits per block must be at least 8, got %d", bitsPerBlock)
	}

	s := &BlockSource{
		name:       name,
		r:          bufio.NewReaderSize(r, healthSampleBytes),
		size:       -1,
		blockBytes: bitsPerBlock / 8,
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// OpenFile opens a raw byte file as a block source.
func OpenFile(path string, bitsPerBlock int) (*BlockSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open file: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("can't stat file: %w", err)
	}

	s, err := NewBlockSource(path, f, bitsPerBlock)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.size = st.Size()
	return s, nil
}

func (s *BlockSource) Name() string { return s.name }

func (s *BlockSource) BlockBits() int { return s.blockBytes * 8 }

// Size is the length of the underlying stream in bytes, or -1 if unknown.
func (s *BlockSource) Size() int64 { return s.size }

// AvailableBlocks is the number of whole blocks the stream holds, or 0 if
// the size is unknown.
func (s *BlockSource) AvailableBlocks() int {
	if s.size < 0 {
		return 0
	}
	return int(s.size / int64(s.blockBytes))
}

// Next reads the next block. A short or failed read returns an error
// wrapping ErrShortBlock and no data.
func (s *BlockSource) Next() (Block, error) {
	buf := make([]byte, s.blockBytes)
	n, err := io.ReadFull(s.r, buf)
	if err != nil {
		return Block{}, fmt.Errorf("%w: got %d of %d bytes: %v", ErrShortBlock, n, s.blockBytes, err)
	}
	return BlockFromBytes(buf), nil
}

// Preflight runs the stuck-source check on the head of the stream without
// consuming it and records the outcome in h (if non-nil).
func (s *BlockSource) Preflight(h *Health) error {
	sample, err := s.r.Peek(healthSampleBytes)
	if len(sample) == 0 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		err = fmt.Errorf("source %s read failed: %w", s.name, err)
		if h != nil {
			h.Set(false, err.Error())
		}
		return err
	}

	if err := CheckSample(sample); err != nil {
		if h != nil {
			h.Set(false, err.Error())
		}
		return err
	}
	if h != nil {
		h.Set(true, "")
	}
	return nil
}

func (s *BlockSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
