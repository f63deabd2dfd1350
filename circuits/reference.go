// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"gonum.org/v1/gonum/mat"
)

// Evaluate walks t on a plaintext feature vector, one feature per internal
// node, going right when the feature exceeds the node threshold.
func (t Tree) Evaluate(features []int64) int64 {
	node := 0
	for lvl := 0; lvl < t.Depth; lvl++ {
		right := 0
		if features[node] > t.Thresholds[node] {
			right = 1
		}
		node = 2*node + 1 + right
	}
	return t.Leaves[node-(1<<t.Depth-1)]
}

// SortReference ranks and places a plaintext array with the same tie
// semantics as Sorter.
func SortReference(a []int64) (ranks, sorted []int64) {
	ranks = make([]int64, len(a))
	for i := range a {
		for j := range a {
			if i != j && a[i] > a[j] {
				ranks[i]++
			}
		}
	}
	sorted = make([]int64, len(a))
	for i, r := range ranks {
		sorted[r] += a[i]
	}
	return ranks, sorted
}

// HasTies reports whether a holds a repeated value.
func HasTies(a []int64) bool {
	seen := make(map[int64]struct{}, len(a))
	for _, v := range a {
		if _, ok := seen[v]; ok {
			return true
		}
		seen[v] = struct{}{}
	}
	return false
}

// FloydWarshallReference runs the relaxation on a plaintext graph and
// returns the distance and predecessor matrices. A pair is updated only on
// strict improvement, as in FloydWarshall.Run.
func FloydWarshallReference(g Graph, bitWidth int) (dist, pred Graph) {
	n := len(g)
	d := mat.NewDense(n, n, nil)
	p := mat.NewDense(n, n, nil)
	p0 := g.Predecessors(bitWidth)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Set(i, j, float64(g[i][j]))
			p.Set(i, j, float64(p0[i][j]))
		}
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				if cand := d.At(i, k) + d.At(k, j); d.At(i, j) > cand {
					d.Set(i, j, cand)
					p.Set(i, j, p.At(k, j))
				}
			}
		}
	}
	return toGraph(d), toGraph(p)
}

func toGraph(m *mat.Dense) Graph {
	r, c := m.Dims()
	g := make(Graph, r)
	for i := range g {
		g[i] = make([]int64, c)
		for j := range g[i] {
			g[i][j] = int64(m.At(i, j))
		}
	}
	return g
}

// RangeFilterReference returns the match count and the SUM of q over rows.
func RangeFilterReference(q Query, rows []Row) (count, sum int64) {
	for _, r := range rows {
		if q.Match(r) {
			count++
			if q.Sum != "" {
				sum += r[q.Sum]
			}
		}
	}
	return count, sum
}
