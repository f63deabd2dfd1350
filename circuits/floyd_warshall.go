// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"fmt"

	"github.com/luxfi/bridge"
)

// Graph is a dense adjacency matrix. Missing edges hold Infinity of the bit
// width and the diagonal is zero.
type Graph [][]int64

// Infinity returns the weight of a missing edge at the given bit width,
// 2^(bits-1)-1. Two of them still add up inside the width.
func Infinity(bitWidth int) int64 {
	return 1<<(bitWidth-1) - 1
}

// Validate checks that g is square.
func (g Graph) Validate() error {
	for _, row := range g {
		if len(row) != len(g) {
			return &bridge.DimensionMismatch{Op: "graph", Want: len(g), Got: len(row)}
		}
	}
	return nil
}

// Predecessors returns the initial predecessor matrix of g at the given bit
// width: P[i][j] = i when the edge i->j exists or i == j, -1 otherwise.
func (g Graph) Predecessors(bitWidth int) [][]int64 {
	inf := Infinity(bitWidth)
	p := make([][]int64, len(g))
	for i := range g {
		p[i] = make([]int64, len(g))
		for j := range g[i] {
			if i == j || g[i][j] < inf {
				p[i][j] = int64(i)
			} else {
				p[i][j] = -1
			}
		}
	}
	return p
}

// FloydWarshallRequirements returns the budget of an n-node run: n chained
// rounds, one select between rounds and one after the last.
func FloydWarshallRequirements(bitWidth, slots, n int) bridge.Requirements {
	return bridge.Requirements{
		BitWidth:     bitWidth,
		Slots:        slots,
		Rounds:       n,
		DepthBetween: 1,
		DepthAfter:   1,
	}
}

// Paths holds encrypted distance and predecessor matrices.
type Paths struct {
	Dist [][]*bridge.Ciphertext
	Pred [][]*bridge.Ciphertext
}

// FloydWarshall computes all-pairs shortest paths on encrypted graphs, one
// graph per lane.
type FloydWarshall struct {
	b *bridge.Bridge
}

// NewFloydWarshall returns an all-pairs shortest path evaluator over b.
func NewFloydWarshall(b *bridge.Bridge) *FloydWarshall {
	return &FloydWarshall{b: b}
}

// EncryptGraphs encrypts one graph per lane together with its initial
// predecessor matrix. All graphs must have the same node count.
func (fw *FloydWarshall) EncryptGraphs(graphs []Graph, bitWidth int) (*Paths, error) {
	if len(graphs) == 0 {
		return nil, fmt.Errorf("encrypt graphs: no graphs")
	}
	n := len(graphs[0])
	dist := make([][]int64, len(graphs))
	pred := make([][]int64, len(graphs))
	for l, g := range graphs {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if len(g) != n {
			return nil, &bridge.DimensionMismatch{Op: "encrypt graphs", Want: n, Got: len(g)}
		}
		p := g.Predecessors(bitWidth)
		for i := 0; i < n; i++ {
			dist[l] = append(dist[l], g[i]...)
			pred[l] = append(pred[l], p[i]...)
		}
	}
	ctx := fw.b.Context()
	d, err := EncryptColumns(ctx, dist, n*n)
	if err != nil {
		return nil, fmt.Errorf("encrypt graphs: %w", err)
	}
	p, err := EncryptColumns(ctx, pred, n*n)
	if err != nil {
		return nil, fmt.Errorf("encrypt graphs: %w", err)
	}
	return &Paths{Dist: square(d, n), Pred: square(p, n)}, nil
}

func square(flat []*bridge.Ciphertext, n int) [][]*bridge.Ciphertext {
	out := make([][]*bridge.Ciphertext, n)
	for i := range out {
		out[i] = flat[i*n : (i+1)*n]
	}
	return out
}

// Run relaxes every pair through every intermediate node k:
// c = [D[i][j] > D[i][k]+D[k][j]], then D[i][j] and P[i][j] take the
// candidate under c. Pairs with i, j or k coinciding cannot improve on
// non-negative weights and are skipped. The input is not modified.
func (fw *FloydWarshall) Run(in *Paths) (*Paths, error) {
	n := len(in.Dist)
	if len(in.Pred) != n {
		return nil, &bridge.DimensionMismatch{Op: "floyd warshall", Want: n, Got: len(in.Pred)}
	}
	ctx := fw.b.Context()
	out := &Paths{Dist: make([][]*bridge.Ciphertext, n), Pred: make([][]*bridge.Ciphertext, n)}
	for i := 0; i < n; i++ {
		if len(in.Dist[i]) != n || len(in.Pred[i]) != n {
			return nil, &bridge.DimensionMismatch{Op: "floyd warshall", Want: n, Got: len(in.Dist[i])}
		}
		out.Dist[i] = append([]*bridge.Ciphertext(nil), in.Dist[i]...)
		out.Pred[i] = append([]*bridge.Ciphertext(nil), in.Pred[i]...)
	}

	d, p := out.Dist, out.Pred
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if i == k {
				continue
			}
			for j := 0; j < n; j++ {
				if j == k || j == i {
					continue
				}
				cand, err := ctx.Add(d[i][k], d[k][j])
				if err != nil {
					return nil, fmt.Errorf("floyd warshall k=%d: %w", k, err)
				}
				c, err := fw.b.GreaterThan(d[i][j], cand)
				if err != nil {
					return nil, fmt.Errorf("floyd warshall k=%d: %w", k, err)
				}
				nd, err := fw.b.Select(c, cand, d[i][j])
				if err != nil {
					return nil, fmt.Errorf("floyd warshall k=%d: %w", k, err)
				}
				np, err := fw.b.Select(c, p[k][j], p[i][j])
				if err != nil {
					return nil, fmt.Errorf("floyd warshall k=%d: %w", k, err)
				}
				d[i][j], p[i][j] = nd, np
			}
		}
	}
	return out, nil
}

// Decrypt returns the distance and predecessor matrices of the first n
// lanes.
func (fw *FloydWarshall) Decrypt(paths *Paths, lanes int) (dist, pred []Graph, err error) {
	ctx := fw.b.Context()
	n := len(paths.Dist)
	flatD := make([]*bridge.Ciphertext, 0, n*n)
	flatP := make([]*bridge.Ciphertext, 0, n*n)
	for i := 0; i < n; i++ {
		flatD = append(flatD, paths.Dist[i]...)
		flatP = append(flatP, paths.Pred[i]...)
	}
	ds, err := DecryptColumns(ctx, flatD, lanes)
	if err != nil {
		return nil, nil, err
	}
	ps, err := DecryptColumns(ctx, flatP, lanes)
	if err != nil {
		return nil, nil, err
	}
	unflatten := func(v []int64) Graph {
		g := make(Graph, n)
		for i := range g {
			g[i] = v[i*n : (i+1)*n]
		}
		return g
	}
	for l := 0; l < lanes; l++ {
		dist = append(dist, unflatten(ds[l]))
		pred = append(pred, unflatten(ps[l]))
	}
	return dist, pred, nil
}

// Path walks a predecessor matrix from i to j. It returns nil when j is
// unreachable.
func Path(pred Graph, i, j int) []int {
	if pred[i][j] < 0 {
		return nil
	}
	path := []int{j}
	for j != i {
		j = int(pred[i][j])
		if j < 0 || len(path) > len(pred) {
			return nil
		}
		path = append(path, j)
	}
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return path
}
