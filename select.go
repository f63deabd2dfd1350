// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import "fmt"

// Select returns mask*onTrue + (1-mask)*onFalse per lane, evaluated as
// mask*(onTrue-onFalse) + onFalse with a single ciphertext multiplication.
// mask must be lifted. Selection is exact per lane when mask is canonical
// 0/1, up to the approximation error of scheme switching.
func (b *Bridge) Select(mask, onTrue, onFalse *Ciphertext) (*Ciphertext, error) {
	ctx := b.ctx
	if err := checkSlots("select", ctx.Slots(), mask, onTrue, onFalse); err != nil {
		return nil, err
	}
	delta, err := ctx.Sub(onTrue, onFalse)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	if delta, err = ctx.Mul(mask, delta); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	out, err := ctx.Add(delta, onFalse)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return out, nil
}

// SelectBoolean lifts mask and selects with it.
func (b *Bridge) SelectBoolean(mask *Boolean, onTrue, onFalse *Ciphertext) (*Ciphertext, error) {
	lifted, err := b.Lift(mask)
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	return b.Select(lifted, onTrue, onFalse)
}

// Min returns the lane-wise minimum of x and y: select([x > y], y, x).
func (b *Bridge) Min(x, y *Ciphertext) (*Ciphertext, error) {
	gt, err := b.GreaterThan(x, y)
	if err != nil {
		return nil, err
	}
	return b.Select(gt, y, x)
}
