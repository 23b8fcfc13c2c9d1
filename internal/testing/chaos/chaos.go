// Package chaos corrupts valid trace scripts so tests can check that parsing
// and replay fail cleanly instead of panicking.
package chaos

import (
	"bytes"
	"math/rand/v2"
)

// Mutation is one kind of corruption.
type Mutation int

const (
	ByteFlip Mutation = iota
	ByteDelete
	ByteInsert
	Truncation
	LineSwap
	LineDrop
	TokenInject
	numMutations
)

var mutationNames = [...]string{
	ByteFlip:    "byte_flip",
	ByteDelete:  "byte_delete",
	ByteInsert:  "byte_insert",
	Truncation:  "truncation",
	LineSwap:    "line_swap",
	LineDrop:    "line_drop",
	TokenInject: "token_inject",
}

func (m Mutation) String() string {
	if m < 0 || m >= numMutations {
		return "unknown"
	}
	return mutationNames[m]
}

// Mutations lists every mutation in declaration order.
func Mutations() []Mutation {
	out := make([]Mutation, 0, numMutations)
	for m := range numMutations {
		out = append(out, m)
	}
	return out
}

// injected tokens are valid on their own but rarely in the spot they land.
var injected = []string{
	"get", "set", "delete", "clear", "advance", "cleanup", "stats", "ttl",
	"entity", "search", "fraction", "max", "min",
	"-1h", "0s", "1.5", "-3", `"`, `""`, "#", "\n", "µs", "99999999999999999999",
}

// Corruptor applies seeded random mutations. It is not safe for concurrent
// use.
type Corruptor struct {
	rng *rand.Rand
}

// NewCorruptor returns a Corruptor whose output is fixed by seed.
func NewCorruptor(seed uint64) *Corruptor {
	return &Corruptor{rng: rand.New(rand.NewPCG(seed, seed+1))}
}

// Corrupt applies one random mutation and returns a new slice.
func (c *Corruptor) Corrupt(input []byte) []byte {
	return c.Apply(Mutation(c.rng.IntN(int(numMutations))), input)
}

// Apply applies m to a copy of input.
func (c *Corruptor) Apply(m Mutation, input []byte) []byte {
	out := bytes.Clone(input)
	if len(out) == 0 {
		return c.inject(out)
	}

	switch m {
	case ByteFlip:
		for range c.rng.IntN(3) + 1 {
			out[c.rng.IntN(len(out))] ^= byte(1 << c.rng.IntN(8))
		}
	case ByteDelete:
		i := c.rng.IntN(len(out))
		out = append(out[:i], out[i+1:]...)
	case ByteInsert:
		i := c.rng.IntN(len(out) + 1)
		out = append(out[:i], append([]byte{byte(c.rng.IntN(256))}, out[i:]...)...)
	case Truncation:
		out = out[:c.rng.IntN(len(out))]
	case LineSwap:
		lines := bytes.Split(out, []byte("\n"))
		i, j := c.rng.IntN(len(lines)), c.rng.IntN(len(lines))
		lines[i], lines[j] = lines[j], lines[i]
		out = bytes.Join(lines, []byte("\n"))
	case LineDrop:
		lines := bytes.Split(out, []byte("\n"))
		i := c.rng.IntN(len(lines))
		out = bytes.Join(append(lines[:i], lines[i+1:]...), []byte("\n"))
	case TokenInject:
		out = c.inject(out)
	}
	return out
}

func (c *Corruptor) inject(input []byte) []byte {
	tok := injected[c.rng.IntN(len(injected))]
	i := c.rng.IntN(len(input) + 1)
	out := make([]byte, 0, len(input)+len(tok)+2)
	out = append(out, input[:i]...)
	out = append(out, ' ')
	out = append(out, tok...)
	out = append(out, ' ')
	return append(out, input[i:]...)
}

// CorruptN applies n random mutations in sequence.
func (c *Corruptor) CorruptN(input []byte, n int) []byte {
	out := bytes.Clone(input)
	for range n {
		out = c.Corrupt(out)
	}
	return out
}

// GenerateCorpus returns count corrupted variants of valid, each with one to
// five mutations.
func (c *Corruptor) GenerateCorpus(valid []byte, count int) [][]byte {
	corpus := make([][]byte, count)
	for i := range corpus {
		corpus[i] = c.CorruptN(valid, c.rng.IntN(5)+1)
	}
	return corpus
}
