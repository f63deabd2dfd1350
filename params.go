// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"fmt"
	"math"
	"math/bits"
	"strings"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
	"github.com/luxfi/lattice/v7/schemes/bgv"
	"github.com/luxfi/lattice/v7/schemes/ckks"
)

// Strategy selects how the bridge evaluates comparisons.
type Strategy int

const (
	// SchemeSwitching runs arithmetic in CKKS and compares through LWE blind
	// rotations.
	SchemeSwitching Strategy = iota
	// EncodingSwitching runs arithmetic in BGV over Z_{p^r} and compares
	// with a digit-extracting step polynomial.
	EncodingSwitching
)

func (s Strategy) String() string {
	switch s {
	case SchemeSwitching:
		return "scheme-switching"
	case EncodingSwitching:
		return "encoding-switching"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy accepts "A"/"scheme-switching" and "B"/"encoding-switching".
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "a", "scheme", "scheme-switching", "ckks":
		return SchemeSwitching, nil
	case "b", "encoding", "encoding-switching", "bgv":
		return EncodingSwitching, nil
	}
	return 0, fmt.Errorf("parse strategy %q: %w", name, ErrUnsupportedStrategy)
}

// SupportedBitWidths lists the integer widths a resolver may be asked for.
var SupportedBitWidths = []int{6, 8, 12, 16}

func supportedBitWidth(b int) bool {
	for _, w := range SupportedBitWidths {
		if w == b {
			return true
		}
	}
	return false
}

// Requirements describes the multiplicative budget of an algorithm around
// its comparisons. Rounds is the number of comparisons chained on the same
// data path, DepthBetween the depth spent between two of them.
type Requirements struct {
	BitWidth     int
	Slots        int
	Rounds       int
	DepthBefore  int
	DepthBetween int
	DepthAfter   int
}

func (r Requirements) normalized() Requirements {
	if r.Slots < 1 {
		r.Slots = 1
	}
	if r.Rounds < 1 {
		r.Rounds = 1
	}
	return r
}

// PlaintextSpace is the logical plaintext ring Z_{P^R} of strategy B.
type PlaintextSpace struct {
	P uint64
	R int
}

// Modulus returns P^R.
func (s PlaintextSpace) Modulus() uint64 {
	m := uint64(1)
	for i := 0; i < s.R; i++ {
		m *= s.P
	}
	return m
}

func (s PlaintextSpace) String() string {
	return fmt.Sprintf("%d^%d", s.P, s.R)
}

// EncodingPreset binds a bit width to its logical plaintext space and to the
// prime modulus T of the BGV scheme that hosts it. T is chosen so that
// (T-1)/2 covers every comparison argument 2(x-y)±1 of the width.
type EncodingPreset struct {
	Space PlaintextSpace
	T     uint64
}

// EncodingPresets are the widths strategy B supports. 12 and 16 bits have
// no entry: their step polynomial degree is infeasible.
var EncodingPresets = map[int]EncodingPreset{
	6: {Space: PlaintextSpace{P: 3, R: 4}, T: 257},
	8: {Space: PlaintextSpace{P: 17, R: 2}, T: 1153},
}

const (
	lweLogQ        = 35
	ckksLogScale   = 40
	bgvLogQ0       = 45
	bgvLogQi       = 40
	keyLogP        = 50
	brkBaseTwo     = 12
	insecureLogN   = 10
	insecureBGV    = 11
	insecureH      = 16
	defaultSecretH = 192
)

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithInsecure pins small rings for tests and local benchmarks. The
// resulting parameters offer no security.
func WithInsecure() ResolverOption {
	return func(r *Resolver) { r.insecure = true }
}

// WithSecurity sets the target security level (default 128-bit).
func WithSecurity(level SecurityLevel) ResolverOption {
	return func(r *Resolver) { r.security = level }
}

// WithSecretHammingWeight sets the Hamming weight of the LWE secret used by
// strategy A's blind rotations.
func WithSecretHammingWeight(h int) ResolverOption {
	return func(r *Resolver) { r.hamming = h }
}

// Resolver maps (bit width, slots, depth requirements) to a concrete
// parameter set for one strategy. It is immutable and safe for concurrent
// use.
type Resolver struct {
	strategy Strategy
	insecure bool
	security SecurityLevel
	hamming  int
}

// NewResolver returns a resolver for the given strategy.
func NewResolver(strategy Strategy, opts ...ResolverOption) *Resolver {
	r := &Resolver{strategy: strategy, security: Security128}
	for _, opt := range opts {
		opt(r)
	}
	if r.hamming == 0 {
		r.hamming = defaultSecretH
		if r.insecure {
			r.hamming = insecureH
		}
	}
	return r
}

// Strategy returns the strategy this resolver builds parameters for.
func (r *Resolver) Strategy() Strategy { return r.strategy }

// Resolve returns parameters supporting a single comparison with one level
// of arithmetic on each side.
func (r *Resolver) Resolve(bitWidth, slots int) (*ParameterSet, error) {
	return r.ResolveFor(Requirements{
		BitWidth:    bitWidth,
		Slots:       slots,
		Rounds:      1,
		DepthBefore: 1,
		DepthAfter:  1,
	})
}

// ResolveFor returns parameters supporting the given requirements.
func (r *Resolver) ResolveFor(req Requirements) (*ParameterSet, error) {
	req = req.normalized()
	if !supportedBitWidth(req.BitWidth) {
		return nil, &ParameterError{Op: "resolve", BitWidth: req.BitWidth, Err: ErrUnsupportedBitWidth}
	}
	if !r.insecure && !r.security.valid() {
		return nil, &ParameterError{Op: "resolve", BitWidth: req.BitWidth, Reason: r.security.String() + " has no ring table"}
	}
	switch r.strategy {
	case SchemeSwitching:
		return r.resolveSchemeSwitching(req)
	case EncodingSwitching:
		return r.resolveEncodingSwitching(req)
	}
	return nil, &ParameterError{Op: "resolve", BitWidth: req.BitWidth, Err: ErrUnsupportedStrategy}
}

func (r *Resolver) candidateLogN(lo int) []int {
	if r.insecure {
		return []int{lo}
	}
	var out []int
	for logN := minSecureLogN; logN <= maxSecureLogN; logN++ {
		out = append(out, logN)
	}
	return out
}

func (r *Resolver) resolveSchemeSwitching(req Requirements) (*ParameterSet, error) {
	logBound := req.BitWidth + 2
	logP := []int{keyLogP, keyLogP}

	var lastErr error
	for _, logN := range r.candidateLogN(insecureLogN) {
		if req.Slots > 1<<(logN-2) {
			lastErr = &ParameterError{Op: "resolve", BitWidth: req.BitWidth,
				Reason: fmt.Sprintf("%d slots exceed N/4 at logN=%d", req.Slots, logN)}
			continue
		}
		ref, err := newRefinement(logN, r.hamming, logBound)
		if err != nil {
			lastErr = err
			continue
		}
		levels := schemeSwitchingLevels(req, ref.Steps)
		logQ := make([]int, levels+1)
		logQ[0] = lweLogQ
		for i := 1; i < len(logQ); i++ {
			logQ[i] = ckksLogScale
		}
		if !r.insecure {
			total := float64(sum(logQ) + sum(logP))
			if !r.security.admits(logN, total) || !r.security.admits(logN-1, float64(lweLogQ+keyLogP)) {
				lastErr = &ParameterError{Op: "resolve", BitWidth: req.BitWidth,
					Reason: fmt.Sprintf("logQP=%.0f not %s at logN=%d", total, r.security, logN)}
				continue
			}
		}

		ckksParams, err := ckks.NewParametersFromLiteral(ckks.ParametersLiteral{
			LogN:            logN,
			LogQ:            logQ,
			LogP:            logP,
			LogDefaultScale: ckksLogScale,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve: ckks parameters: %w", err)
		}
		lweParams, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
			LogN:    logN - 1,
			Q:       ckksParams.Q()[:1],
			P:       ckksParams.P()[:1],
			Xs:      ring.Ternary{H: r.hamming},
			Xe:      rlwe.DefaultXe,
			NTTFlag: true,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve: lwe parameters: %w", err)
		}
		return &ParameterSet{
			strategy:     SchemeSwitching,
			requirements: req,
			insecure:     r.insecure,
			ckks:         ckksParams,
			lwe:          lweParams,
			logBound:     logBound,
			hamming:      r.hamming,
			refine:       ref,
		}, nil
	}
	if lastErr == nil {
		lastErr = &ParameterError{Op: "resolve", BitWidth: req.BitWidth, Reason: "no ring degree fits"}
	}
	return nil, lastErr
}

// schemeSwitchingLevels counts the CKKS levels needed: the comparison
// consumes one level for slots-to-coefficients, 2+J after packing (one for
// coefficients-to-slots, J+1 for the refinement combine), and whatever the
// caller spends before, between and after.
func schemeSwitchingLevels(req Requirements, steps int) int {
	tail := req.DepthAfter
	if req.Rounds > 1 && req.DepthBetween > tail {
		tail = req.DepthBetween
	}
	levels := steps + 2 + tail
	if req.DepthBefore+1 > levels {
		levels = req.DepthBefore + 1
	}
	return levels
}

func (r *Resolver) resolveEncodingSwitching(req Requirements) (*ParameterSet, error) {
	preset, ok := EncodingPresets[req.BitWidth]
	if !ok {
		return nil, &ParameterError{Op: "resolve", BitWidth: req.BitWidth,
			Reason: "step polynomial degree infeasible under encoding switching", Err: ErrUnsupportedBitWidth}
	}
	polyDepth := bits.Len64(preset.T - 1)
	levels := encodingSwitchingLevels(req, polyDepth)
	logQ := make([]int, levels+1)
	logQ[0] = bgvLogQ0
	for i := 1; i < len(logQ); i++ {
		logQ[i] = bgvLogQi
	}
	logP := []int{keyLogP, keyLogP}

	var lastErr error
	for _, logN := range r.candidateLogN(insecureBGV) {
		if !r.insecure {
			total := float64(sum(logQ) + sum(logP))
			if !r.security.admits(logN, total) {
				lastErr = &ParameterError{Op: "resolve", BitWidth: req.BitWidth,
					Reason: fmt.Sprintf("logQP=%.0f exceeds every %s ring", total, r.security)}
				continue
			}
		}
		params, err := bgv.NewParametersFromLiteral(bgv.ParametersLiteral{
			LogN:             logN,
			LogQ:             logQ,
			LogP:             logP,
			PlaintextModulus: preset.T,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve: bgv parameters: %w", err)
		}
		if req.Slots > params.MaxSlots() {
			return nil, &ParameterError{Op: "resolve", BitWidth: req.BitWidth, Modulus: preset.T,
				Reason: fmt.Sprintf("%d slots exceed the %d plaintext slots of T", req.Slots, params.MaxSlots())}
		}
		return &ParameterSet{
			strategy:     EncodingSwitching,
			requirements: req,
			insecure:     r.insecure,
			bgv:          params,
			preset:       preset,
			polyDepth:    polyDepth,
		}, nil
	}
	return nil, lastErr
}

func encodingSwitchingLevels(req Requirements, polyDepth int) int {
	return req.DepthBefore + req.Rounds*polyDepth + (req.Rounds-1)*req.DepthBetween + req.DepthAfter
}

// refinement holds the iterative sign-extraction schedule of strategy A.
// Eps bounds the blind-rotation phase error, Theta the indicator threshold,
// K the per-step scaling and Steps (J) the number of extra passes.
type refinement struct {
	Eps   float64
	Theta float64
	K     int64
	Steps int
}

func newRefinement(logN, hamming, logBound int) (refinement, error) {
	n := math.Ldexp(1, logN)
	sigma := math.Sqrt(5*float64(hamming)/12 + 1.0/12)
	eps := 12 * sigma / n
	logK := int(math.Floor(math.Log2(1 / (4 * eps))))
	if logK < 1 {
		return refinement{}, &ParameterError{Op: "resolve",
			Reason: fmt.Sprintf("blind rotation error %.4f too large at logN=%d", eps, logN)}
	}
	k := int64(1) << logK
	bound := eps * math.Ldexp(1, logBound)
	steps := 0
	for pow := 1.0; pow <= bound; pow *= float64(k) {
		steps++
	}
	return refinement{Eps: eps, Theta: 3 * eps, K: k, Steps: steps}, nil
}

func sum(xs []int) (s int) {
	for _, x := range xs {
		s += x
	}
	return
}

// ParameterSet is a resolved, immutable parameter bundle for one strategy.
type ParameterSet struct {
	strategy     Strategy
	requirements Requirements
	insecure     bool

	// scheme switching
	ckks     ckks.Parameters
	lwe      rlwe.Parameters
	logBound int
	hamming  int
	refine   refinement

	// encoding switching
	bgv       bgv.Parameters
	preset    EncodingPreset
	polyDepth int
}

func (ps *ParameterSet) Strategy() Strategy         { return ps.strategy }
func (ps *ParameterSet) Requirements() Requirements { return ps.requirements }
func (ps *ParameterSet) BitWidth() int              { return ps.requirements.BitWidth }
func (ps *ParameterSet) Slots() int                 { return ps.requirements.Slots }
func (ps *ParameterSet) Insecure() bool             { return ps.insecure }

// Params returns the RLWE parameters of the arithmetic scheme.
func (ps *ParameterSet) Params() rlwe.Parameters {
	if ps.strategy == SchemeSwitching {
		return *ps.ckks.GetRLWEParameters()
	}
	return *ps.bgv.GetRLWEParameters()
}

func (ps *ParameterSet) LogN() int     { return ps.Params().LogN() }
func (ps *ParameterSet) MaxLevel() int { return ps.Params().MaxLevel() }

// LogQP returns the total modulus size of the arithmetic scheme in bits.
func (ps *ParameterSet) LogQP() float64 { return ps.Params().LogQP() }

// Space returns the logical plaintext space (strategy B only).
func (ps *ParameterSet) Space() PlaintextSpace { return ps.preset.Space }

// PlaintextModulus returns T for strategy B and 0 otherwise.
func (ps *ParameterSet) PlaintextModulus() uint64 { return ps.preset.T }

// Refinement returns (K, J) of strategy A's sign extraction.
func (ps *ParameterSet) Refinement() (k int64, steps int) { return ps.refine.K, ps.refine.Steps }

func (ps *ParameterSet) String() string {
	switch ps.strategy {
	case SchemeSwitching:
		return fmt.Sprintf("%s bits=%d slots=%d logN=%d levels=%d logQP=%.0f K=%d J=%d",
			ps.strategy, ps.BitWidth(), ps.Slots(), ps.LogN(), ps.MaxLevel(), ps.LogQP(), ps.refine.K, ps.refine.Steps)
	default:
		return fmt.Sprintf("%s bits=%d slots=%d logN=%d levels=%d logQP=%.0f T=%d space=%s",
			ps.strategy, ps.BitWidth(), ps.Slots(), ps.LogN(), ps.MaxLevel(), ps.LogQP(), ps.preset.T, ps.preset.Space)
	}
}
