// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"fmt"
	"math"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/schemes/bgv"
	"github.com/luxfi/lattice/v7/schemes/ckks"
)

// arithmetic is the evaluator surface shared by the CKKS and BGV schemes.
type arithmetic interface {
	AddNew(op0 *rlwe.Ciphertext, op1 rlwe.Operand) (*rlwe.Ciphertext, error)
	SubNew(op0 *rlwe.Ciphertext, op1 rlwe.Operand) (*rlwe.Ciphertext, error)
	MulNew(op0 *rlwe.Ciphertext, op1 rlwe.Operand) (*rlwe.Ciphertext, error)
	MulRelinNew(op0 *rlwe.Ciphertext, op1 rlwe.Operand) (*rlwe.Ciphertext, error)
	Rescale(op0, opOut *rlwe.Ciphertext) error
}

// Context owns the key material of a ParameterSet and exposes encryption,
// decryption and the linear operations drivers issue between comparisons.
//
// Keys are generated once by NewContext and never mutated. Evaluators hold
// scratch buffers: a Context must not be used by two goroutines at once,
// each goroutine takes its own ShallowCopy.
type Context struct {
	params   *ParameterSet
	logSlots int

	sk        *rlwe.SecretKey
	evk       *rlwe.MemEvaluationKeySet
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	eval      arithmetic

	ckksEncoder *ckks.Encoder
	ckksEval    *ckks.Evaluator

	bgvEncoder *bgv.Encoder
	bgvEval    *bgv.Evaluator

	switching *switchingKeys
}

// NewContext generates the keys of ps: relinearization keys for the
// arithmetic scheme and, under scheme switching, the LWE secret, the ring
// switching key, blind rotation keys, repacking keys and the Galois keys of
// both homomorphic DFTs.
func NewContext(ps *ParameterSet) (*Context, error) {
	if ps == nil {
		return nil, fmt.Errorf("new context: nil parameter set")
	}
	c := &Context{params: ps}

	switch ps.strategy {
	case SchemeSwitching:
		params := ps.ckks
		kgen := rlwe.NewKeyGenerator(params)
		c.sk = kgen.GenSecretKeyNew()
		c.logSlots = laneLogSlots(ps.Slots())

		keys, gks, err := genSwitchingKeys(ps, kgen, c.sk, c.logSlots)
		if err != nil {
			return nil, fmt.Errorf("new context: %w", err)
		}
		c.switching = keys
		c.evk = rlwe.NewMemEvaluationKeySet(kgen.GenRelinearizationKeyNew(c.sk), gks...)
		c.ckksEncoder = ckks.NewEncoder(params)
		c.ckksEval = ckks.NewEvaluator(params, c.evk)
		c.eval = c.ckksEval
		c.encryptor = rlwe.NewEncryptor(params, c.sk)
		c.decryptor = rlwe.NewDecryptor(params, c.sk)

	case EncodingSwitching:
		params := ps.bgv
		kgen := rlwe.NewKeyGenerator(params)
		c.sk = kgen.GenSecretKeyNew()
		c.evk = rlwe.NewMemEvaluationKeySet(kgen.GenRelinearizationKeyNew(c.sk))
		c.bgvEncoder = bgv.NewEncoder(params)
		c.bgvEval = bgv.NewEvaluator(params, c.evk, false)
		c.eval = c.bgvEval
		c.encryptor = rlwe.NewEncryptor(params, c.sk)
		c.decryptor = rlwe.NewDecryptor(params, c.sk)

	default:
		return nil, &ParameterError{Op: "new context", Err: ErrUnsupportedStrategy}
	}
	return c, nil
}

// ShallowCopy returns a Context sharing every key with c but owning fresh
// evaluator buffers. The copy and c can be used concurrently.
func (c *Context) ShallowCopy() *Context {
	cc := *c
	cc.encryptor = c.encryptor.ShallowCopy()
	cc.decryptor = c.decryptor.ShallowCopy()
	if c.ckksEval != nil {
		cc.ckksEncoder = c.ckksEncoder.ShallowCopy()
		cc.ckksEval = c.ckksEval.ShallowCopy()
		cc.eval = cc.ckksEval
	}
	if c.bgvEval != nil {
		cc.bgvEncoder = c.bgvEncoder.ShallowCopy()
		cc.bgvEval = c.bgvEval.ShallowCopy()
		cc.eval = cc.bgvEval
	}
	return &cc
}

func (c *Context) Params() *ParameterSet { return c.params }
func (c *Context) Strategy() Strategy    { return c.params.strategy }
func (c *Context) Slots() int            { return c.params.Slots() }

// Encrypt packs values into the first len(values) lanes of a fresh
// ciphertext at the top of the modulus chain. Unused lanes hold zero.
func (c *Context) Encrypt(values []int64) (*Ciphertext, error) {
	if len(values) > c.Slots() {
		return nil, &DimensionMismatch{Op: "encrypt", Want: c.Slots(), Got: len(values)}
	}
	if c.params.strategy == SchemeSwitching {
		fs := make([]float64, len(values))
		for i, v := range values {
			fs[i] = float64(v)
		}
		return c.EncryptFloat(fs)
	}

	pt := bgv.NewPlaintext(c.params.bgv, c.params.bgv.MaxLevel())
	if err := c.bgvEncoder.Encode(values, pt); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	ct, err := c.encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return &Ciphertext{Ciphertext: ct, Slots: c.Slots(), Space: c.params.preset.Space}, nil
}

// EncryptFloat encrypts real-valued lanes. Only scheme switching carries
// approximate values.
func (c *Context) EncryptFloat(values []float64) (*Ciphertext, error) {
	if c.params.strategy != SchemeSwitching {
		return nil, fmt.Errorf("encrypt float: %w", ErrStrategyMismatch)
	}
	if len(values) > c.Slots() {
		return nil, &DimensionMismatch{Op: "encrypt", Want: c.Slots(), Got: len(values)}
	}
	params := c.params.ckks
	lanes := make([]float64, 1<<c.logSlots)
	copy(lanes, values)

	pt := ckks.NewPlaintext(params, params.MaxLevel())
	pt.LogDimensions.Cols = c.logSlots
	if err := c.ckksEncoder.Encode(lanes, pt); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	ct, err := c.encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return &Ciphertext{Ciphertext: ct, Slots: c.Slots()}, nil
}

// Decrypt returns the Slots lanes of ct rounded to the nearest integer.
// Encoding switching values are centered in (-T/2, T/2].
func (c *Context) Decrypt(ct *Ciphertext) ([]int64, error) {
	if ct.Empty() {
		return nil, fmt.Errorf("decrypt: empty ciphertext")
	}
	if c.params.strategy == SchemeSwitching {
		fs, err := c.DecryptFloat(ct)
		if err != nil {
			return nil, err
		}
		out := make([]int64, len(fs))
		for i, f := range fs {
			out[i] = int64(math.Round(f))
		}
		return out, nil
	}

	pt := c.decryptor.DecryptNew(ct.Ciphertext)
	lanes := make([]int64, c.params.bgv.MaxSlots())
	if err := c.bgvEncoder.Decode(pt, lanes); err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return lanes[:ct.Slots], nil
}

// DecryptFloat returns the raw approximate lanes of a scheme switching
// ciphertext.
func (c *Context) DecryptFloat(ct *Ciphertext) ([]float64, error) {
	if c.params.strategy != SchemeSwitching {
		return nil, fmt.Errorf("decrypt float: %w", ErrStrategyMismatch)
	}
	if ct.Empty() {
		return nil, fmt.Errorf("decrypt: empty ciphertext")
	}
	pt := c.decryptor.DecryptNew(ct.Ciphertext)
	lanes := make([]float64, 1<<pt.LogDimensions.Cols)
	if err := c.ckksEncoder.Decode(pt, lanes); err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return lanes[:ct.Slots], nil
}

func (c *Context) wrap(ct *rlwe.Ciphertext, like *Ciphertext) *Ciphertext {
	return &Ciphertext{Ciphertext: ct, Slots: like.Slots, Space: like.Space}
}

// Add returns a + b.
func (c *Context) Add(a, b *Ciphertext) (*Ciphertext, error) {
	if err := checkSlots("add", c.Slots(), a, b); err != nil {
		return nil, err
	}
	out, err := c.eval.AddNew(a.Ciphertext, b.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	return c.wrap(out, a), nil
}

// Sub returns a - b.
func (c *Context) Sub(a, b *Ciphertext) (*Ciphertext, error) {
	if err := checkSlots("sub", c.Slots(), a, b); err != nil {
		return nil, err
	}
	out, err := c.eval.SubNew(a.Ciphertext, b.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("sub: %w", err)
	}
	return c.wrap(out, a), nil
}

// Mul returns a * b, relinearized and rescaled. It consumes one level.
func (c *Context) Mul(a, b *Ciphertext) (*Ciphertext, error) {
	if err := checkSlots("mul", c.Slots(), a, b); err != nil {
		return nil, err
	}
	out, err := c.eval.MulRelinNew(a.Ciphertext, b.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("mul: %w", err)
	}
	if err = c.eval.Rescale(out, out); err != nil {
		return nil, fmt.Errorf("mul: rescale: %w", err)
	}
	return c.wrap(out, a), nil
}

// AddConst returns a + k in every lane.
func (c *Context) AddConst(a *Ciphertext, k int64) (*Ciphertext, error) {
	if err := checkSlots("add const", c.Slots(), a); err != nil {
		return nil, err
	}
	out, err := c.eval.AddNew(a.Ciphertext, k)
	if err != nil {
		return nil, fmt.Errorf("add const: %w", err)
	}
	return c.wrap(out, a), nil
}

// MulConst returns k * a in every lane. Integer constants consume no level.
func (c *Context) MulConst(a *Ciphertext, k int64) (*Ciphertext, error) {
	if err := checkSlots("mul const", c.Slots(), a); err != nil {
		return nil, err
	}
	out, err := c.eval.MulNew(a.Ciphertext, k)
	if err != nil {
		return nil, fmt.Errorf("mul const: %w", err)
	}
	return c.wrap(out, a), nil
}

// Neg returns -a.
func (c *Context) Neg(a *Ciphertext) (*Ciphertext, error) {
	return c.MulConst(a, -1)
}

// OneMinus returns 1 - a, the complement of a lifted boolean.
func (c *Context) OneMinus(a *Ciphertext) (*Ciphertext, error) {
	neg, err := c.Neg(a)
	if err != nil {
		return nil, err
	}
	return c.AddConst(neg, 1)
}

// Sum returns the sum of cts. An empty list is an error.
func (c *Context) Sum(cts ...*Ciphertext) (*Ciphertext, error) {
	if len(cts) == 0 {
		return nil, fmt.Errorf("sum: no operands")
	}
	acc := cts[0]
	for _, ct := range cts[1:] {
		var err error
		if acc, err = c.Add(acc, ct); err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Product returns the product of cts using a balanced tree, so n operands
// consume ceil(log2(n)) levels.
func (c *Context) Product(cts ...*Ciphertext) (*Ciphertext, error) {
	if len(cts) == 0 {
		return nil, fmt.Errorf("product: no operands")
	}
	level := cts
	for len(level) > 1 {
		next := make([]*Ciphertext, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			prod, err := c.Mul(level[i], level[i+1])
			if err != nil {
				return nil, err
			}
			next = append(next, prod)
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0], nil
}
