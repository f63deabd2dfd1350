// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"slices"

	"github.com/luxfi/lattice/v7/circuits/ckks/dft"
	"github.com/luxfi/lattice/v7/core/rgsw/blindrot"
	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
	"github.com/luxfi/lattice/v7/schemes/ckks"
	"github.com/luxfi/lattice/v7/utils"
)

// switchingKeys are the read-only keys of the scheme switching path.
type switchingKeys struct {
	ringSwitch    *rlwe.EvaluationKey
	blindRotation blindrot.BlindRotationEvaluationKeySet
	repack        *rlwe.RingPackingEvaluationKey
	s2c, c2s      dft.MatrixLiteral
}

// laneLogSlots returns the log2 of the CKKS slot vector holding slots lanes.
// The homomorphic DFTs need at least two slots.
func laneLogSlots(slots int) int {
	l := bits.Len(uint(slots - 1))
	if l < 1 {
		l = 1
	}
	return l
}

// switchingLiterals returns the slots-to-coefficients transform, which also
// rescales u = d / 2^logBound onto a quarter of the LWE modulus, and the
// coefficients-to-slots transform applied after repacking.
func switchingLiterals(ps *ParameterSet, logSlots int) (s2c, c2s dft.MatrixLiteral) {
	params := ps.ckks
	scaling := float64(params.Q()[0]) / (4 * math.Ldexp(1, ps.logBound) * params.DefaultScale().Float64())
	s2c = dft.MatrixLiteral{
		Type:     dft.HomomorphicDecode,
		LogSlots: logSlots,
		LevelQ:   1,
		LevelP:   params.MaxLevelP(),
		Levels:   []int{1},
		Scaling:  new(big.Float).SetFloat64(scaling),
	}
	c2s = dft.MatrixLiteral{
		Type:     dft.HomomorphicEncode,
		LogSlots: logSlots,
		LevelQ:   params.MaxLevel(),
		LevelP:   params.MaxLevelP(),
		Levels:   []int{1},
	}
	return
}

// genSwitchingKeys generates the LWE secret and every key derived from it,
// plus the Galois keys of both DFTs. The LWE secret does not outlive this
// call.
func genSwitchingKeys(ps *ParameterSet, kgen *rlwe.KeyGenerator, sk *rlwe.SecretKey, logSlots int) (*switchingKeys, []*rlwe.GaloisKey, error) {
	params := ps.ckks
	if 1<<logSlots > params.N()/4 {
		return nil, nil, &ParameterError{Op: "switching keys", BitWidth: ps.BitWidth(),
			Reason: fmt.Sprintf("%d slots exceed N/4", 1<<logSlots)}
	}
	s2c, c2s := switchingLiterals(ps, logSlots)

	galEls := s2c.GaloisElements(params)
	galEls = append(galEls, c2s.GaloisElements(params)...)
	galEls = append(galEls, params.GaloisElementForComplexConjugation())
	slices.Sort(galEls)
	galEls = slices.Compact(galEls)

	skLWE := rlwe.NewKeyGenerator(ps.lwe).GenSecretKeyNew()

	repack := &rlwe.RingPackingEvaluationKey{
		Parameters: map[int]rlwe.ParameterProvider{params.LogN(): params.GetRLWEParameters()},
	}
	repack.GenRepackEvaluationKeys(params, sk, rlwe.EvaluationKeyParameters{})

	keys := &switchingKeys{
		ringSwitch: kgen.GenEvaluationKeyNew(sk, skLWE),
		blindRotation: blindrot.GenEvaluationKeyNew(params, sk, ps.lwe, skLWE,
			rlwe.EvaluationKeyParameters{BaseTwoDecomposition: utils.Pointy(brkBaseTwo)}),
		repack: repack,
		s2c:    s2c,
		c2s:    c2s,
	}
	return keys, kgen.GenGaloisKeysNew(galEls, sk), nil
}

// schemeSwitcher compares by leaving CKKS for per-lane LWE samples, blind
// rotating each lane through a sign test polynomial, and repacking the
// results into CKKS slots.
type schemeSwitcher struct {
	ctx      *Context
	params   ckks.Parameters
	lwe      rlwe.Parameters
	keys     *switchingKeys
	ref      refinement
	logSlots int
	gapLWE   int
	gapN     int

	dftEval *dft.Evaluator
	s2c     dft.Matrix
	c2s     dft.Matrix
	br      *blindrot.Evaluator
	pack    *rlwe.RingPackingEvaluator
	lweRing *ring.Ring

	signMap      map[int]*ring.Poly
	indicatorMap map[int]*ring.Poly
}

func newSchemeSwitcher(ctx *Context) (*schemeSwitcher, error) {
	ps := ctx.params
	params := ps.ckks
	keys := ctx.switching

	s2c, err := dft.NewMatrixFromLiteral(params, keys.s2c, ctx.ckksEncoder)
	if err != nil {
		return nil, fmt.Errorf("scheme switching: %w", err)
	}
	c2s, err := dft.NewMatrixFromLiteral(params, keys.c2s, ctx.ckksEncoder)
	if err != nil {
		return nil, fmt.Errorf("scheme switching: %w", err)
	}

	s := &schemeSwitcher{
		ctx:      ctx,
		params:   params,
		lwe:      ps.lwe,
		keys:     keys,
		ref:      ps.refine,
		logSlots: ctx.logSlots,
		gapLWE:   ps.lwe.N() / (2 << ctx.logSlots),
		gapN:     params.N() / (2 << ctx.logSlots),
		dftEval:  dft.NewEvaluator(params, ctx.ckksEval),
		s2c:      s2c,
		c2s:      c2s,
		br:       blindrot.NewEvaluator(params, ps.lwe),
		pack:     rlwe.NewRingPackingEvaluator(keys.repack),
		lweRing:  ps.lwe.RingQ().AtLevel(0),
	}

	// Sign lands on ±1/2 so that t + 1/2 is canonical 0/1.
	theta := s.ref.Theta
	scale := params.DefaultScale().Float64()
	signPoly := blindrot.InitTestPolynomial(func(x float64) float64 {
		if x > 0 {
			return 1
		}
		return -1
	}, rlwe.NewScale(scale/2), params.RingQ(), -1, 1)
	indicatorPoly := blindrot.InitTestPolynomial(func(x float64) float64 {
		if math.Abs(x) > theta {
			return 1
		}
		return 0
	}, rlwe.NewScale(scale), params.RingQ(), -1, 1)

	s.signMap = make(map[int]*ring.Poly, ps.Slots())
	s.indicatorMap = make(map[int]*ring.Poly, ps.Slots())
	for i := 0; i < ps.Slots(); i++ {
		s.signMap[i*s.gapLWE] = &signPoly
		s.indicatorMap[i*s.gapLWE] = &indicatorPoly
	}
	return s, nil
}

func (s *schemeSwitcher) shallowCopy(ctx *Context) comparator {
	cp := *s
	cp.ctx = ctx
	cp.dftEval = dft.NewEvaluator(s.params, ctx.ckksEval)
	cp.br = blindrot.NewEvaluator(s.params, s.lwe)
	cp.pack = s.pack.ShallowCopy()
	return &cp
}

// compare maps every lane of diff to an LWE sample and blind rotates it
// once per refinement step. Steps 0..J-1 also evaluate the magnitude
// indicator; step J only needs the sign.
func (s *schemeSwitcher) compare(diff *Ciphertext) (*Boolean, error) {
	eval := s.ctx.ckksEval
	if diff.Level() < 1 {
		return nil, fmt.Errorf("compare: input at level %d, need at least 1", diff.Level())
	}
	ct := eval.DropLevelNew(diff.Ciphertext, diff.Level()-1)

	coeffs, err := s.dftEval.SlotsToCoeffsNew(ct, nil, s.s2c)
	if err != nil {
		return nil, fmt.Errorf("compare: slots to coeffs: %w", err)
	}
	coeffs.IsBatched = false

	sample := rlwe.NewCiphertext(s.lwe, 1, 0)
	if err = eval.ApplyEvaluationKey(coeffs, s.keys.ringSwitch, sample); err != nil {
		return nil, fmt.Errorf("compare: ring switch: %w", err)
	}

	out := &Boolean{strategy: SchemeSwitching, slots: diff.Slots}
	k := uint64(s.ref.K)
	for j := 0; j <= s.ref.Steps; j++ {
		if j > 0 {
			s.lweRing.MulScalar(sample.Value[0], k, sample.Value[0])
			s.lweRing.MulScalar(sample.Value[1], k, sample.Value[1])
		}
		signs, err := s.br.Evaluate(sample, s.signMap, s.keys.blindRotation)
		if err != nil {
			return nil, fmt.Errorf("compare: blind rotation: %w", err)
		}
		out.signs = append(out.signs, signs)

		if j == s.ref.Steps {
			break
		}
		ind, err := s.br.Evaluate(sample, s.indicatorMap, s.keys.blindRotation)
		if err != nil {
			return nil, fmt.Errorf("compare: blind rotation: %w", err)
		}
		out.indicators = append(out.indicators, ind)
	}
	return out, nil
}

// lift repacks every step into CKKS slots and folds the steps from the
// finest to the coarsest: t_J = s_J, t_j = ind_j*(s_j - t_{j+1}) + t_{j+1}.
// The result t_0 + 1/2 sits J+1 levels below the top of the chain.
func (s *schemeSwitcher) lift(v *Boolean) (*Ciphertext, error) {
	if len(v.signs) != s.ref.Steps+1 || len(v.indicators) != s.ref.Steps {
		return nil, fmt.Errorf("lift: boolean has %d sign steps, want %d", len(v.signs), s.ref.Steps+1)
	}
	eval := s.ctx.ckksEval

	t, err := s.repack(v.signs[s.ref.Steps])
	if err != nil {
		return nil, err
	}
	for j := s.ref.Steps - 1; j >= 0; j-- {
		sj, err := s.repack(v.signs[j])
		if err != nil {
			return nil, err
		}
		ind, err := s.repack(v.indicators[j])
		if err != nil {
			return nil, err
		}
		delta, err := eval.SubNew(sj, t)
		if err != nil {
			return nil, fmt.Errorf("lift: %w", err)
		}
		if err = eval.MulRelin(ind, delta, delta); err != nil {
			return nil, fmt.Errorf("lift: %w", err)
		}
		if err = eval.Rescale(delta, delta); err != nil {
			return nil, fmt.Errorf("lift: %w", err)
		}
		if t, err = eval.AddNew(delta, t); err != nil {
			return nil, fmt.Errorf("lift: %w", err)
		}
	}
	if err = eval.Add(t, 0.5, t); err != nil {
		return nil, fmt.Errorf("lift: %w", err)
	}
	return &Ciphertext{Ciphertext: t, Slots: v.slots}, nil
}

// repack gathers per-lane blind rotation outputs into one ring element, with
// lane i at coefficient i*gapN, and moves the coefficients back into slots.
func (s *schemeSwitcher) repack(brs map[int]*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	cts := make(map[int]*rlwe.Ciphertext, len(brs))
	for idx, ct := range brs {
		cts[idx/s.gapLWE*s.gapN] = ct.CopyNew()
	}
	packed, err := s.pack.Pack(cts, s.params.LogN(), true)
	if err != nil {
		return nil, fmt.Errorf("lift: repack: %w", err)
	}
	packed.IsBatched = false
	packed.LogDimensions = s.params.LogMaxDimensions()
	packed.Scale = s.params.DefaultScale()

	slots, _, err := s.dftEval.CoeffsToSlotsNew(packed, s.c2s)
	if err != nil {
		return nil, fmt.Errorf("lift: coeffs to slots: %w", err)
	}
	slots.IsBatched = true
	slots.LogDimensions.Cols = s.logSlots
	return slots, nil
}
