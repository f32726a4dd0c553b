package rng

// Block is a fixed-length sequence of bits taken from the source, stored one
// bit per byte (0 or 1). A Block is never modified after it is built; callers
// must treat the slice returned by Bits as read-only.
type Block struct {
	bits []byte
}

// BlockFromBytes unpacks buf most significant bit first.
func BlockFromBytes(buf []byte) Block {
	bits := make([]byte, len(buf)*8)
	for i, b := range buf {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = (b >> (7 - j)) & 1
		}
	}
	return Block{bits: bits}
}

// BlockFromBits copies bits, mapping every non-zero value to 1.
func BlockFromBits(bits []byte) Block {
	out := make([]byte, len(bits))
	for i, b := range bits {
		if b != 0 {
			out[i] = 1
		}
	}
	return Block{bits: out}
}

// BlockFromString builds a block from a string of '0' and '1' characters.
// Any other character is ignored.
func BlockFromString(s string) Block {
	bits := make([]byte, 0, len(s))
	for _, ch := range s {
		switch ch {
		case '0':
			bits = append(bits, 0)
		case '1':
			bits = append(bits, 1)
		}
	}
	return Block{bits: bits}
}

func (b Block) Len() int { return len(b.bits) }

func (b Block) Bit(i int) byte { return b.bits[i] }

func (b Block) Bits() []byte { return b.bits }

// Ones counts the set bits.
func (b Block) Ones() int {
	n := 0
	for _, bit := range b.bits {
		n += int(bit)
	}
	return n
}
