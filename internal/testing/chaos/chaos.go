// Package chaos corrupts valid byte inputs to verify a parser handles
// malformed data gracefully — by returning an error, never by panicking.
package chaos

import (
	"math/rand"
	"unicode/utf8"
)

// Corruptor applies randomized byte-level mutations to an input.
type Corruptor struct {
	rng *rand.Rand
}

// NewCorruptor creates a Corruptor seeded deterministically, so a failing
// run can be reproduced from its seed.
func NewCorruptor(seed int64) *Corruptor {
	return &Corruptor{rng: rand.New(rand.NewSource(seed))}
}

// Mutation identifies one kind of corruption Corrupt can apply.
type Mutation int

const (
	ByteFlip Mutation = iota
	ByteDelete
	ByteInsert
	ByteReplace
	Utf8Corrupt
	Truncation
	BitInversion
)

// Corrupt applies one random mutation to input.
func (c *Corruptor) Corrupt(input []byte) []byte {
	if len(input) == 0 {
		return c.insertRandomBytes(nil)
	}

	switch Mutation(c.rng.Intn(7)) {
	case ByteFlip:
		return c.byteFlip(input)
	case ByteDelete:
		return c.byteDelete(input)
	case ByteInsert:
		return c.byteInsert(input)
	case ByteReplace:
		return c.byteReplace(input)
	case Utf8Corrupt:
		return c.utf8Corrupt(input)
	case Truncation:
		return c.truncate(input)
	case BitInversion:
		return c.bitInversion(input)
	default:
		return input
	}
}

// CorruptN applies n successive random mutations to input.
func (c *Corruptor) CorruptN(input []byte, n int) []byte {
	result := make([]byte, len(input))
	copy(result, input)
	for i := 0; i < n; i++ {
		result = c.Corrupt(result)
	}
	return result
}

func (c *Corruptor) byteFlip(input []byte) []byte {
	result := make([]byte, len(input))
	copy(result, input)
	if len(result) == 0 {
		return result
	}
	n := c.rng.Intn(3) + 1
	for i := 0; i < n; i++ {
		idx := c.rng.Intn(len(result))
		result[idx] ^= byte(1 << c.rng.Intn(8))
	}
	return result
}

func (c *Corruptor) byteDelete(input []byte) []byte {
	if len(input) <= 1 {
		return input
	}
	idx := c.rng.Intn(len(input))
	out := make([]byte, len(input))
	copy(out, input)
	return append(out[:idx], out[idx+1:]...)
}

func (c *Corruptor) byteInsert(input []byte) []byte {
	idx := c.rng.Intn(len(input) + 1)
	b := byte(c.rng.Intn(256))
	out := make([]byte, len(input))
	copy(out, input)
	return append(out[:idx], append([]byte{b}, out[idx:]...)...)
}

func (c *Corruptor) byteReplace(input []byte) []byte {
	result := make([]byte, len(input))
	copy(result, input)
	if len(result) == 0 {
		return result
	}
	idx := c.rng.Intn(len(result))
	result[idx] = byte(c.rng.Intn(256))
	return result
}

func (c *Corruptor) utf8Corrupt(input []byte) []byte {
	result := make([]byte, len(input))
	copy(result, input)

	for i := 0; i < len(result); {
		r, size := utf8.DecodeRune(result[i:])
		if r == utf8.RuneError && size > 1 && c.rng.Float64() < 0.5 {
			result[i] = byte(c.rng.Intn(256))
		}
		i += size
	}

	if len(result) > 0 && c.rng.Float64() < 0.3 {
		idx := c.rng.Intn(len(result))
		result[idx] = 0xC0 | byte(c.rng.Intn(0x20))
	}
	return result
}

func (c *Corruptor) truncate(input []byte) []byte {
	if len(input) <= 1 {
		return input
	}
	pos := c.rng.Intn(len(input)-1) + 1
	return input[:pos]
}

func (c *Corruptor) bitInversion(input []byte) []byte {
	result := make([]byte, len(input))
	copy(result, input)
	if len(result) == 0 {
		return result
	}
	n := c.rng.Intn(5) + 1
	for i := 0; i < n; i++ {
		idx := c.rng.Intn(len(result))
		bit := c.rng.Intn(8)
		result[idx] ^= 1 << bit
	}
	return result
}

func (c *Corruptor) insertRandomBytes(input []byte) []byte {
	n := c.rng.Intn(10) + 1
	extra := make([]byte, n)
	c.rng.Read(extra)
	return append(input, extra...)
}

// GenerateCorpus produces count corrupted variants of valid, each with a
// random number (1 to 5) of successive mutations.
func (c *Corruptor) GenerateCorpus(valid []byte, count int) [][]byte {
	corpus := make([][]byte, count)
	for i := 0; i < count; i++ {
		intensity := c.rng.Intn(5) + 1
		corpus[i] = c.CorruptN(valid, intensity)
	}
	return corpus
}
