// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package bridge evaluates comparisons inside arithmetic circuits over
// homomorphically encrypted integers.
//
// A Bridge takes an encrypted difference, extracts its sign in a
// representation suited to non-linear evaluation, and hands back a 0/1
// ciphertext the surrounding arithmetic can multiply against. Two
// strategies are available, chosen once from the ParameterSet:
//
//   - SchemeSwitching: CKKS lanes are switched to LWE samples, blind rotated
//     through a sign test polynomial, and repacked into CKKS slots.
//   - EncodingSwitching: a single BGV scheme with logical plaintext space
//     p^r evaluates a step polynomial whose output carries a p^(r-1) digit
//     artifact, removed by lift with metadata-only modulus relabelling.
//
// Typical use:
//
//	ps, _ := bridge.NewResolver(bridge.SchemeSwitching).Resolve(8, 16)
//	ctx, _ := bridge.NewContext(ps)
//	b, _ := bridge.NewBridge(ctx)
//	gt, _ := b.GreaterThan(x, y)           // canonical 0/1 per lane
//	max, _ := b.Select(gt, x, y)
package bridge

import (
	"fmt"
)

// comparator is implemented once per strategy.
type comparator interface {
	compare(diff *Ciphertext) (*Boolean, error)
	lift(v *Boolean) (*Ciphertext, error)
	shallowCopy(ctx *Context) comparator
}

// Bridge evaluates compare and lift with the strategy of its Context.
// Like the Context, a Bridge is not safe for concurrent use; goroutines
// take a ShallowCopy.
type Bridge struct {
	ctx *Context
	cmp comparator
}

// NewBridge prepares the evaluators of the context's strategy. Under scheme
// switching this encodes both homomorphic DFT matrices and the blind
// rotation test polynomials.
func NewBridge(ctx *Context) (*Bridge, error) {
	if ctx == nil {
		return nil, fmt.Errorf("new bridge: nil context")
	}
	var (
		cmp comparator
		err error
	)
	switch ctx.Strategy() {
	case SchemeSwitching:
		cmp, err = newSchemeSwitcher(ctx)
	case EncodingSwitching:
		cmp, err = newEncodingSwitcher(ctx)
	default:
		return nil, &ParameterError{Op: "new bridge", Err: ErrUnsupportedStrategy}
	}
	if err != nil {
		return nil, err
	}
	return &Bridge{ctx: ctx, cmp: cmp}, nil
}

// ShallowCopy returns a Bridge sharing keys and precomputed matrices with b
// but owning its scratch buffers.
func (b *Bridge) ShallowCopy() *Bridge {
	ctx := b.ctx.ShallowCopy()
	return &Bridge{ctx: ctx, cmp: b.cmp.shallowCopy(ctx)}
}

// Context returns the context the bridge evaluates against.
func (b *Bridge) Context() *Context { return b.ctx }

// Compare evaluates [diff > 0] per lane and returns it in the strategy's
// native representation.
func (b *Bridge) Compare(diff *Ciphertext) (*Boolean, error) {
	if err := checkSlots("compare", b.ctx.Slots(), diff); err != nil {
		return nil, err
	}
	return b.cmp.compare(diff)
}

// Lift turns a Boolean into an arithmetic ciphertext holding canonical 0/1
// lanes. A Boolean built with AsBoolean lifts to its wrapped ciphertext.
func (b *Bridge) Lift(v *Boolean) (*Ciphertext, error) {
	if v == nil {
		return nil, fmt.Errorf("lift: nil boolean")
	}
	if v.lifted != nil {
		return v.lifted, nil
	}
	if v.slots != b.ctx.Slots() {
		return nil, &DimensionMismatch{Op: "lift", Want: b.ctx.Slots(), Got: v.slots}
	}
	if v.strategy != b.ctx.Strategy() {
		return nil, fmt.Errorf("lift: %s boolean on %s bridge: %w", v.strategy, b.ctx.Strategy(), ErrStrategyMismatch)
	}
	return b.cmp.lift(v)
}

// IsPositive returns lift(compare(diff)).
func (b *Bridge) IsPositive(diff *Ciphertext) (*Ciphertext, error) {
	v, err := b.Compare(diff)
	if err != nil {
		return nil, err
	}
	return b.Lift(v)
}

// GreaterThan returns [x > y] per lane for integer lanes. The sign is taken
// of 2(x-y)-1, which is never zero.
func (b *Bridge) GreaterThan(x, y *Ciphertext) (*Ciphertext, error) {
	return b.oddCompare("greater than", x, y, -1)
}

// AtLeast returns [x >= y] per lane for integer lanes, the sign of
// 2(x-y)+1.
func (b *Bridge) AtLeast(x, y *Ciphertext) (*Ciphertext, error) {
	return b.oddCompare("at least", x, y, 1)
}

// GreaterThanConst returns [x > k] per lane.
func (b *Bridge) GreaterThanConst(x *Ciphertext, k int64) (*Ciphertext, error) {
	return b.oddCompareConst(x, k, -1, 1)
}

// AtLeastConst returns [x >= k] per lane.
func (b *Bridge) AtLeastConst(x *Ciphertext, k int64) (*Ciphertext, error) {
	return b.oddCompareConst(x, k, 1, 1)
}

// AtMostConst returns [k >= x] per lane.
func (b *Bridge) AtMostConst(x *Ciphertext, k int64) (*Ciphertext, error) {
	return b.oddCompareConst(x, k, 1, -1)
}

func (b *Bridge) oddCompare(op string, x, y *Ciphertext, offset int64) (*Ciphertext, error) {
	ctx := b.ctx
	d, err := ctx.Sub(x, y)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d, err = ctx.MulConst(d, 2); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if d, err = ctx.AddConst(d, offset); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b.IsPositive(d)
}

// oddCompareConst takes the sign of sign*2(x-k)+offset.
func (b *Bridge) oddCompareConst(x *Ciphertext, k, offset, sign int64) (*Ciphertext, error) {
	ctx := b.ctx
	d, err := ctx.MulConst(x, 2*sign)
	if err != nil {
		return nil, err
	}
	if d, err = ctx.AddConst(d, offset-2*sign*k); err != nil {
		return nil, err
	}
	return b.IsPositive(d)
}
