// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	for _, name := range []string{"A", "a", "scheme-switching", " ckks "} {
		s, err := ParseStrategy(name)
		require.NoError(t, err)
		require.Equal(t, SchemeSwitching, s)
	}
	for _, name := range []string{"B", "encoding", "bgv"} {
		s, err := ParseStrategy(name)
		require.NoError(t, err)
		require.Equal(t, EncodingSwitching, s)
	}
	_, err := ParseStrategy("C")
	require.ErrorIs(t, err, ErrUnsupportedStrategy)
}

func TestResolveRejectsBitWidth(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		bits     int
	}{
		{"A/7", SchemeSwitching, 7},
		{"A/32", SchemeSwitching, 32},
		{"B/7", EncodingSwitching, 7},
		{"B/12", EncodingSwitching, 12},
		{"B/16", EncodingSwitching, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(tt.strategy, WithInsecure()).Resolve(tt.bits, 4)
			require.ErrorIs(t, err, ErrUnsupportedBitWidth)
			var pe *ParameterError
			require.True(t, errors.As(err, &pe))
			require.Equal(t, tt.bits, pe.BitWidth)
		})
	}
}

func TestResolveUnknownStrategy(t *testing.T) {
	_, err := NewResolver(Strategy(7), WithInsecure()).Resolve(8, 1)
	require.ErrorIs(t, err, ErrUnsupportedStrategy)
}

func TestResolveEncodingSwitching(t *testing.T) {
	for bits, preset := range EncodingPresets {
		req := Requirements{BitWidth: bits, Slots: 8, Rounds: 3, DepthBefore: 1, DepthBetween: 1, DepthAfter: 2}
		ps, err := NewResolver(EncodingSwitching, WithInsecure()).ResolveFor(req)
		require.NoError(t, err)
		require.Equal(t, EncodingSwitching, ps.Strategy())
		require.Equal(t, preset.Space, ps.Space())
		require.Equal(t, preset.T, ps.PlaintextModulus())
		require.Equal(t, insecureBGV, ps.LogN())
		require.True(t, ps.Insecure())

		// (T-1)/2 covers every argument 2(x-y)±1 of the width.
		require.GreaterOrEqual(t, (preset.T-1)/2, uint64(1)<<(bits+1)-1)
		require.Zero(t, preset.Space.Modulus()%preset.Space.P)

		depth := ps.polyDepth
		require.Equal(t, 1+3*depth+2*1+2, ps.MaxLevel())
	}
}

func TestResolveSchemeSwitching(t *testing.T) {
	for _, bits := range SupportedBitWidths {
		ps, err := NewResolver(SchemeSwitching, WithInsecure()).Resolve(bits, 8)
		require.NoError(t, err)
		k, steps := ps.Refinement()
		require.GreaterOrEqual(t, k, int64(2))
		require.GreaterOrEqual(t, steps, 1)
		require.Equal(t, insecureLogN, ps.LogN())
		require.Equal(t, steps+2+1, ps.MaxLevel())
		require.Equal(t, ps.LogN()-1, ps.lwe.LogN())
		require.Equal(t, ps.ckks.Q()[0], ps.lwe.Q()[0])
		require.Contains(t, ps.String(), "scheme-switching")
	}

	// More refinement steps are needed as the width grows.
	_, j8 := mustResolve(t, SchemeSwitching, 8).Refinement()
	_, j16 := mustResolve(t, SchemeSwitching, 16).Refinement()
	require.Greater(t, j16, j8)
}

func mustResolve(t *testing.T, s Strategy, bits int) *ParameterSet {
	t.Helper()
	ps, err := NewResolver(s, WithInsecure()).Resolve(bits, 4)
	require.NoError(t, err)
	return ps
}

func TestResolveSecure(t *testing.T) {
	for _, s := range []Strategy{SchemeSwitching, EncodingSwitching} {
		ps, err := NewResolver(s).Resolve(8, 4)
		require.NoError(t, err)
		require.False(t, ps.Insecure())
		limit, ok := Security128.MaxLogQP(ps.LogN())
		require.True(t, ok)
		require.LessOrEqual(t, ps.LogQP(), float64(limit))
	}

	// A stricter level needs a ring at least as large.
	ps128, err := NewResolver(EncodingSwitching).Resolve(6, 4)
	require.NoError(t, err)
	ps256, err := NewResolver(EncodingSwitching, WithSecurity(Security256)).Resolve(6, 4)
	require.NoError(t, err)
	require.GreaterOrEqual(t, ps256.LogN(), ps128.LogN())

	_, err = NewResolver(EncodingSwitching, WithSecurity(SecurityLevel(80))).Resolve(6, 4)
	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
}

func TestResolveTooManySlots(t *testing.T) {
	_, err := NewResolver(SchemeSwitching, WithInsecure()).Resolve(8, 1<<10)
	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
	require.Contains(t, pe.Reason, "exceed")

	_, err = NewResolver(EncodingSwitching, WithInsecure()).Resolve(8, 1<<12)
	require.ErrorAs(t, err, &pe)
}

func TestRefinementSchedule(t *testing.T) {
	ref, err := newRefinement(10, 16, 10)
	require.NoError(t, err)
	require.Equal(t, int64(8), ref.K)
	require.Equal(t, 2, ref.Steps)
	require.InDelta(t, 3*ref.Eps, ref.Theta, 1e-12)

	// A dense secret at a small ring leaves no room for K >= 2.
	_, err = newRefinement(10, 1024, 10)
	var pe *ParameterError
	require.ErrorAs(t, err, &pe)
}

func TestLevelFormulas(t *testing.T) {
	req := Requirements{Rounds: 4, DepthBetween: 1, DepthAfter: 1}
	require.Equal(t, 4*9+3+1, encodingSwitchingLevels(req, 9))
	require.Equal(t, 2+2+1, schemeSwitchingLevels(req, 2))

	// Scheme switching refreshes depth: only the largest tail counts.
	req = Requirements{Rounds: 2, DepthBetween: 3, DepthAfter: 1}
	require.Equal(t, 2+2+3, schemeSwitchingLevels(req, 2))
	req = Requirements{Rounds: 1, DepthBefore: 9, DepthAfter: 1}
	require.Equal(t, 10, schemeSwitchingLevels(req, 2))
}

func TestPlaintextSpace(t *testing.T) {
	require.Equal(t, uint64(81), PlaintextSpace{P: 3, R: 4}.Modulus())
	require.Equal(t, uint64(289), PlaintextSpace{P: 17, R: 2}.Modulus())
	require.Equal(t, "3^4", PlaintextSpace{P: 3, R: 4}.String())
}
