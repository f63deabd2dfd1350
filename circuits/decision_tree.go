// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"fmt"

	"github.com/luxfi/bridge"
)

// Tree is a complete binary decision tree of depth Depth. Internal node n
// has children 2n+1 (left) and 2n+2 (right); leaf i is node 2^Depth-1+i.
type Tree struct {
	Depth      int
	Thresholds []int64
	Leaves     []int64
}

// Validate checks the node counts against the depth.
func (t Tree) Validate() error {
	if t.Depth < 1 {
		return fmt.Errorf("tree: depth %d, need at least 1", t.Depth)
	}
	if len(t.Thresholds) != 1<<t.Depth-1 {
		return &bridge.DimensionMismatch{Op: "tree thresholds", Want: 1<<t.Depth - 1, Got: len(t.Thresholds)}
	}
	if len(t.Leaves) != 1<<t.Depth {
		return &bridge.DimensionMismatch{Op: "tree leaves", Want: 1 << t.Depth, Got: len(t.Leaves)}
	}
	return nil
}

// DecisionTreeRequirements returns the depth budget of a depth-d tree: one
// comparison round on fresh inputs, then the path products and the leaf
// multiplication, which fit in d levels.
func DecisionTreeRequirements(bitWidth, slots, depth int) bridge.Requirements {
	return bridge.Requirements{
		BitWidth:   bitWidth,
		Slots:      slots,
		Rounds:     1,
		DepthAfter: depth,
	}
}

// EncryptedTree holds a tree model with every threshold and leaf broadcast
// to all lanes.
type EncryptedTree struct {
	Depth      int
	Thresholds []*bridge.Ciphertext
	Leaves     []*bridge.Ciphertext
}

// DecisionTree evaluates an encrypted tree on encrypted feature vectors.
type DecisionTree struct {
	b *bridge.Bridge
}

// NewDecisionTree returns a tree evaluator over b.
func NewDecisionTree(b *bridge.Bridge) *DecisionTree {
	return &DecisionTree{b: b}
}

// EncryptTree broadcasts the model into every lane.
func (dt *DecisionTree) EncryptTree(t Tree) (*EncryptedTree, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	ctx := dt.b.Context()
	thr, err := broadcastAll(ctx, t.Thresholds)
	if err != nil {
		return nil, fmt.Errorf("encrypt tree: %w", err)
	}
	leaves, err := broadcastAll(ctx, t.Leaves)
	if err != nil {
		return nil, fmt.Errorf("encrypt tree: %w", err)
	}
	return &EncryptedTree{Depth: t.Depth, Thresholds: thr, Leaves: leaves}, nil
}

// EncryptFeatures encrypts one feature vector per lane. Vector l holds the
// feature tested at each internal node.
func (dt *DecisionTree) EncryptFeatures(t Tree, lanes [][]int64) ([]*bridge.Ciphertext, error) {
	return EncryptColumns(dt.b.Context(), lanes, len(t.Thresholds))
}

// Run returns the leaf reached by every lane. Each internal node yields
// c_n = [feature_n > threshold_n]; a leaf is weighted by the product of c
// (right turns) and 1-c (left turns) along its path.
func (dt *DecisionTree) Run(features []*bridge.Ciphertext, tree *EncryptedTree) (*bridge.Ciphertext, error) {
	nodes := 1<<tree.Depth - 1
	if len(features) != nodes {
		return nil, &bridge.DimensionMismatch{Op: "tree features", Want: nodes, Got: len(features)}
	}
	ctx := dt.b.Context()

	right := make([]*bridge.Ciphertext, nodes)
	left := make([]*bridge.Ciphertext, nodes)
	for n := 0; n < nodes; n++ {
		var err error
		if right[n], err = dt.b.GreaterThan(features[n], tree.Thresholds[n]); err != nil {
			return nil, fmt.Errorf("tree node %d: %w", n, err)
		}
		if left[n], err = ctx.OneMinus(right[n]); err != nil {
			return nil, fmt.Errorf("tree node %d: %w", n, err)
		}
	}

	terms := make([]*bridge.Ciphertext, 0, len(tree.Leaves))
	path := make([]*bridge.Ciphertext, tree.Depth)
	for leaf := range tree.Leaves {
		node := 0
		for lvl := 0; lvl < tree.Depth; lvl++ {
			r := (leaf >> (tree.Depth - 1 - lvl)) & 1
			if r == 1 {
				path[lvl] = right[node]
			} else {
				path[lvl] = left[node]
			}
			node = 2*node + 1 + r
		}
		ind, err := ctx.Product(path...)
		if err != nil {
			return nil, fmt.Errorf("tree leaf %d: %w", leaf, err)
		}
		term, err := ctx.Mul(ind, tree.Leaves[leaf])
		if err != nil {
			return nil, fmt.Errorf("tree leaf %d: %w", leaf, err)
		}
		terms = append(terms, term)
	}
	return ctx.Sum(terms...)
}
