// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
)

// DefaultSeed seeds every generator unless a run asks for another.
const DefaultSeed = 42

// Source is a deterministic generator of benchmark inputs. The state is a
// blake3 digest advanced by hashing state||counter, so a seed reproduces the
// same trees, arrays, graphs and tables on every platform.
type Source struct {
	state   [32]byte
	counter uint64
	buf     []byte
}

// NewSource returns a Source seeded with seed.
func NewSource(seed uint64) *Source {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	return &Source{state: blake3.Sum256(b[:])}
}

func (s *Source) advance() [32]byte {
	var data [40]byte
	copy(data[:32], s.state[:])
	binary.LittleEndian.PutUint64(data[32:], s.counter)
	s.counter++
	s.state = blake3.Sum256(data[:])
	return s.state
}

// Uint64 returns 64 uniformly random bits.
func (s *Source) Uint64() uint64 {
	if len(s.buf) < 8 {
		st := s.advance()
		s.buf = st[:]
	}
	v := binary.LittleEndian.Uint64(s.buf)
	s.buf = s.buf[8:]
	return v
}

// Intn returns a uniform value in [0, n). It panics if n <= 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		panic("circuits: Intn with non-positive bound")
	}
	bound := uint64(n)
	// Reject the tail that would bias the modulo.
	limit := ^uint64(0) - ^uint64(0)%bound
	for {
		v := s.Uint64()
		if v < limit {
			return int(v % bound)
		}
	}
}

// TreeBound returns the value bound of generated trees at a bit width:
// 100, or less when 2(x-y)+1 would not fit the width.
func TreeBound(bitWidth int) int64 {
	return min(100, int64(1)<<(bitWidth-1))
}

// Range returns a uniform value in [lo, hi].
func (s *Source) Range(lo, hi int64) int64 {
	return lo + int64(s.Intn(int(hi-lo+1)))
}

// Values returns n values in [0, 2^(bits/2)), so that the product of two of
// them still fits the bit width.
func (s *Source) Values(n, bits int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(s.Intn(1 << (bits / 2)))
	}
	return out
}

// Lanes returns slots independent draws of Values(n, bits), one per lane.
func (s *Source) Lanes(slots, n, bits int) [][]int64 {
	out := make([][]int64, slots)
	for i := range out {
		out[i] = s.Values(n, bits)
	}
	return out
}

// Tree returns a complete tree of the given depth with thresholds and leaves
// in [0, bound).
func (s *Source) Tree(depth int, bound int64) Tree {
	t := Tree{
		Depth:      depth,
		Thresholds: make([]int64, 1<<depth-1),
		Leaves:     make([]int64, 1<<depth),
	}
	for i := range t.Thresholds {
		t.Thresholds[i] = int64(s.Intn(int(bound)))
	}
	for i := range t.Leaves {
		t.Leaves[i] = int64(s.Intn(int(bound)))
	}
	return t
}

// Features returns one feature vector per lane, one feature per internal
// node of a tree of the given depth, each in [0, bound).
func (s *Source) Features(slots, depth int, bound int64) [][]int64 {
	out := make([][]int64, slots)
	for i := range out {
		out[i] = make([]int64, 1<<depth-1)
		for j := range out[i] {
			out[i][j] = int64(s.Intn(int(bound)))
		}
	}
	return out
}

// Graph returns an n-node adjacency matrix. An edge exists with probability
// 1/3 and weighs [1, 2^(bits-2)]; missing edges hold Infinity(bits) and the
// diagonal is zero.
func (s *Source) Graph(n, bits int) Graph {
	inf := Infinity(bits)
	g := make(Graph, n)
	for i := range g {
		g[i] = make([]int64, n)
		for j := range g[i] {
			switch {
			case i == j:
				g[i][j] = 0
			case s.Intn(3) == 0:
				g[i][j] = s.Range(1, 1<<(bits-2))
			default:
				g[i][j] = inf
			}
		}
	}
	return g
}

// Employees returns n rows of the employee table.
func (s *Source) Employees(n int) []Employee {
	out := make([]Employee, n)
	for i := range out {
		out[i] = Employee{
			Salary: s.Range(400, 800),
			Hours:  s.Range(6, 12),
			Bonus:  s.Range(50, 350),
		}
	}
	return out
}
