// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"fmt"

	"github.com/luxfi/bridge"
)

// SortRequirements returns the budget of a rank sort: the rank comparisons
// and the positional equality tests are two chained rounds with free
// additions in between, then the equality product and the value product.
func SortRequirements(bitWidth, slots int) bridge.Requirements {
	return bridge.Requirements{
		BitWidth:   bitWidth,
		Slots:      slots,
		Rounds:     2,
		DepthAfter: 2,
	}
}

// Sorter sorts encrypted arrays by rank counting. Equal elements share a
// rank, so an array with ties collapses them into one position and leaves
// zeros at the positions they would have filled.
type Sorter struct {
	b *bridge.Bridge
}

// NewSorter returns a sorter over b.
func NewSorter(b *bridge.Bridge) *Sorter {
	return &Sorter{b: b}
}

// Ranks returns rank_i = sum over j != i of [a_i > a_j], the number of
// elements strictly smaller than a_i.
func (s *Sorter) Ranks(a []*bridge.Ciphertext) ([]*bridge.Ciphertext, error) {
	ctx := s.b.Context()
	ranks := make([]*bridge.Ciphertext, len(a))
	for i := range a {
		gts := make([]*bridge.Ciphertext, 0, len(a)-1)
		for j := range a {
			if i == j {
				continue
			}
			gt, err := s.b.GreaterThan(a[i], a[j])
			if err != nil {
				return nil, fmt.Errorf("rank %d: %w", i, err)
			}
			gts = append(gts, gt)
		}
		if len(gts) == 0 {
			zero, err := ctx.Sub(a[i], a[i])
			if err != nil {
				return nil, fmt.Errorf("rank %d: %w", i, err)
			}
			ranks[i] = zero
			continue
		}
		r, err := ctx.Sum(gts...)
		if err != nil {
			return nil, fmt.Errorf("rank %d: %w", i, err)
		}
		ranks[i] = r
	}
	return ranks, nil
}

// Run returns the array sorted ascending:
// sorted_k = sum_i [rank_i >= k]*[k >= rank_i]*a_i.
func (s *Sorter) Run(a []*bridge.Ciphertext) ([]*bridge.Ciphertext, error) {
	if len(a) == 0 {
		return nil, fmt.Errorf("sort: empty input")
	}
	ranks, err := s.Ranks(a)
	if err != nil {
		return nil, err
	}
	return s.Place(a, ranks)
}

// Place writes every element to the position named by its rank.
func (s *Sorter) Place(a, ranks []*bridge.Ciphertext) ([]*bridge.Ciphertext, error) {
	if len(a) != len(ranks) {
		return nil, &bridge.DimensionMismatch{Op: "sort place", Want: len(a), Got: len(ranks)}
	}
	ctx := s.b.Context()
	n := len(a)
	sorted := make([]*bridge.Ciphertext, n)
	for k := 0; k < n; k++ {
		terms := make([]*bridge.Ciphertext, n)
		for i := 0; i < n; i++ {
			ge, err := s.b.AtLeastConst(ranks[i], int64(k))
			if err != nil {
				return nil, fmt.Errorf("sort position %d: %w", k, err)
			}
			le, err := s.b.AtMostConst(ranks[i], int64(k))
			if err != nil {
				return nil, fmt.Errorf("sort position %d: %w", k, err)
			}
			eq, err := ctx.Mul(ge, le)
			if err != nil {
				return nil, fmt.Errorf("sort position %d: %w", k, err)
			}
			if terms[i], err = ctx.Mul(eq, a[i]); err != nil {
				return nil, fmt.Errorf("sort position %d: %w", k, err)
			}
		}
		var err error
		if sorted[k], err = ctx.Sum(terms...); err != nil {
			return nil, fmt.Errorf("sort position %d: %w", k, err)
		}
	}
	return sorted, nil
}
