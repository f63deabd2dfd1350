// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"github.com/luxfi/lattice/v7/core/rlwe"
)

// Ciphertext is an arithmetic ciphertext: Slots independent lanes packed
// into one CKKS (scheme switching) or BGV (encoding switching) element.
// Space is the logical p^r tag of encoding switching and is zero under
// scheme switching.
type Ciphertext struct {
	*rlwe.Ciphertext
	Slots int
	Space PlaintextSpace
}

// CopyNew returns a deep copy of ct.
func (ct *Ciphertext) CopyNew() *Ciphertext {
	if ct == nil {
		return nil
	}
	out := &Ciphertext{Slots: ct.Slots, Space: ct.Space}
	if ct.Ciphertext != nil {
		out.Ciphertext = ct.Ciphertext.CopyNew()
	}
	return out
}

// Empty reports whether ct carries no ciphertext data.
func (ct *Ciphertext) Empty() bool {
	return ct == nil || ct.Ciphertext == nil || len(ct.Value) == 0
}

// shallow returns a new value sharing ct's polynomials but owning its
// metadata, so tag and scale changes never reach the caller's copy.
func (ct *Ciphertext) shallow() *Ciphertext {
	out := &Ciphertext{Slots: ct.Slots, Space: ct.Space}
	if ct.Ciphertext != nil {
		inner := *ct.Ciphertext
		if ct.MetaData != nil {
			md := *ct.MetaData
			inner.MetaData = &md
		}
		out.Ciphertext = &inner
	}
	return out
}

// Boolean is the comparison result in the representation the active
// strategy produces natively. Under scheme switching it holds the blind
// rotation outputs of every refinement step. Under encoding switching it
// holds a BGV ciphertext still carrying the p^(r-1) digit artifact. A
// Boolean is not valid input to arithmetic until lifted.
type Boolean struct {
	strategy Strategy
	slots    int

	// scheme switching: per refinement step, lane -> blind rotation output
	signs      []map[int]*rlwe.Ciphertext
	indicators []map[int]*rlwe.Ciphertext

	// encoding switching
	tagged *Ciphertext

	// set when the value is already canonical 0/1
	lifted *Ciphertext
}

// AsBoolean wraps an already lifted ciphertext. Lifting the result returns
// the same ciphertext unchanged.
func AsBoolean(lifted *Ciphertext) *Boolean {
	if lifted == nil {
		return nil
	}
	return &Boolean{slots: lifted.Slots, lifted: lifted}
}

// Slots returns the number of lanes the Boolean covers.
func (v *Boolean) Slots() int { return v.slots }

// Lifted reports whether v already holds canonical 0/1 lanes.
func (v *Boolean) Lifted() bool { return v != nil && v.lifted != nil }

// Strategy returns the strategy that produced v. Pass-through values
// created by AsBoolean report the zero Strategy.
func (v *Boolean) Strategy() Strategy { return v.strategy }

// Value returns the lifted ciphertext of v, or ErrNotLifted when v still
// holds the native comparison output.
func (v *Boolean) Value() (*Ciphertext, error) {
	if !v.Lifted() {
		return nil, ErrNotLifted
	}
	return v.lifted, nil
}
