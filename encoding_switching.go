// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"fmt"

	"github.com/luxfi/lattice/v7/circuits/bgv/polynomial"
	"github.com/luxfi/lattice/v7/schemes/bgv"
)

// encodingSwitcher compares inside BGV: a step polynomial over F_T sends
// every lane in {1, ..., (T-1)/2} to p^(r-1) and every other lane to zero.
// The p^(r-1) factor is the digit artifact lift removes.
type encodingSwitcher struct {
	ctx    *Context
	params bgv.Parameters
	space  PlaintextSpace
	step   polynomial.Polynomial
	poly   *polynomial.Evaluator
}

func newEncodingSwitcher(ctx *Context) (*encodingSwitcher, error) {
	ps := ctx.params
	coeffs := stepCoefficients(ps.preset.T, ps.preset.Space)
	return &encodingSwitcher{
		ctx:    ctx,
		params: ps.bgv,
		space:  ps.preset.Space,
		step:   polynomial.NewPolynomial(coeffs),
		poly:   polynomial.NewEvaluator(ps.bgv, ctx.bgvEval),
	}, nil
}

// stepCoefficients interpolates f(x) = p^(r-1) * [x in {1..(T-1)/2}] over
// F_T. By Fermat, [x == a] = 1 - (x-a)^(T-1), which expands to
// c_0 = 0 and c_k = -sum_a a^(T-1-k) for k >= 1.
func stepCoefficients(t uint64, space PlaintextSpace) []uint64 {
	half := (t - 1) / 2
	coeffs := make([]uint64, t)
	for a := uint64(1); a <= half; a++ {
		pow := uint64(1)
		for e := uint64(0); e+1 < t; e++ {
			k := t - 1 - e
			coeffs[k] = (coeffs[k] + pow) % t
			pow = pow * a % t
		}
	}
	artifact := (space.Modulus() / space.P) % t
	for k := 1; k < len(coeffs); k++ {
		coeffs[k] = (t - coeffs[k]) % t * artifact % t
	}
	return coeffs
}

func (e *encodingSwitcher) shallowCopy(ctx *Context) comparator {
	cp := *e
	cp.ctx = ctx
	cp.poly = polynomial.NewEvaluator(e.params, ctx.bgvEval)
	return &cp
}

func (e *encodingSwitcher) compare(diff *Ciphertext) (*Boolean, error) {
	out, err := e.poly.Evaluate(diff.Ciphertext, e.step, diff.Scale)
	if err != nil {
		return nil, fmt.Errorf("compare: step polynomial: %w", err)
	}
	tagged := &Ciphertext{Ciphertext: out, Slots: diff.Slots, Space: e.space}
	return &Boolean{strategy: EncodingSwitching, slots: diff.Slots, tagged: tagged}, nil
}

// lift divides the artifact out one digit at a time, then restores the
// full p^r tag.
func (e *encodingSwitcher) lift(v *Boolean) (*Ciphertext, error) {
	if v.tagged == nil {
		return nil, fmt.Errorf("lift: boolean carries no ciphertext")
	}
	ct := v.tagged
	for i := 1; i < e.space.R; i++ {
		var err error
		if ct, err = e.ctx.DivideModByP(ct); err != nil {
			return nil, err
		}
	}
	return e.ctx.MultiplyModByP2R(ct)
}

// DivideModByP returns ct relabelled from p^r to p^(r-1). Only metadata
// changes: the BGV scale absorbs a factor p, so decoding divides by p
// modulo T. ct itself is left untouched. The tag modulus must be a
// multiple of p and strictly greater than p. A nil or empty ciphertext is
// returned as is.
func (c *Context) DivideModByP(ct *Ciphertext) (*Ciphertext, error) {
	if ct.Empty() {
		return ct, nil
	}
	if c.params.strategy != EncodingSwitching {
		return nil, fmt.Errorf("divide mod by p: %w", ErrStrategyMismatch)
	}
	p := ct.Space.P
	if p == 0 {
		return nil, &ParameterError{Op: "divide mod by p", Reason: "ciphertext carries no plaintext space"}
	}
	mod := ct.Space.Modulus()
	if mod%p != 0 || mod <= p {
		return nil, &ParameterError{Op: "divide mod by p", Modulus: mod, Factor: p,
			Reason: "modulus must be a multiple of the factor and strictly greater"}
	}
	out := ct.shallow()
	out.Space.R--
	out.Scale = out.Scale.Mul(c.params.bgv.NewScale(p))
	return out, nil
}

// MultiplyModByP2R returns ct relabelled with the full plaintext space of
// the parameter set. It is the final step of lift: once the artifact is
// divided out the lanes hold canonical 0/1 at every modulus.
func (c *Context) MultiplyModByP2R(ct *Ciphertext) (*Ciphertext, error) {
	if ct.Empty() {
		return ct, nil
	}
	if c.params.strategy != EncodingSwitching {
		return nil, fmt.Errorf("multiply mod by p^2r: %w", ErrStrategyMismatch)
	}
	out := ct.shallow()
	out.Space = c.params.preset.Space
	return out, nil
}
