// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T, strategy Strategy, req Requirements) *Bridge {
	t.Helper()
	ps, err := NewResolver(strategy, WithInsecure()).ResolveFor(req)
	require.NoError(t, err)
	ctx, err := NewContext(ps)
	require.NoError(t, err)
	b, err := NewBridge(ctx)
	require.NoError(t, err)
	return b
}

func skipSchemeSwitching(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("scheme switching pipeline skipped in short mode")
	}
}

func encrypt(t *testing.T, ctx *Context, values ...int64) *Ciphertext {
	t.Helper()
	ct, err := ctx.Encrypt(values)
	require.NoError(t, err)
	return ct
}

func decrypt(t *testing.T, ctx *Context, ct *Ciphertext) []int64 {
	t.Helper()
	got, err := ctx.Decrypt(ct)
	require.NoError(t, err)
	return got
}

func indicator(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// TestIsPositiveEncodingSwitching sweeps every odd argument of the 6-bit
// width: lift(compare(d)) = [d > 0].
func TestIsPositiveEncodingSwitching(t *testing.T) {
	const bits = 6
	b := newTestBridge(t, EncodingSwitching, Requirements{BitWidth: bits, Slots: 64, DepthAfter: 1})
	ctx := b.Context()

	var diffs []int64
	for d := -(int64(1)<<(bits+1) - 1); d < 1<<(bits+1); d += 2 {
		diffs = append(diffs, d)
	}
	for start := 0; start < len(diffs); start += ctx.Slots() {
		chunk := diffs[start:min(start+ctx.Slots(), len(diffs))]
		got := decrypt(t, ctx, mustIsPositive(t, b, encrypt(t, ctx, chunk...)))
		for i, d := range chunk {
			require.Equal(t, indicator(d > 0), got[i], "d=%d", d)
		}
	}
}

// boundaryArguments returns at most n odd comparison arguments of a width:
// ±1, ±3, the extremes ±(2^(bits+1)-1) and an even stride across the range.
func boundaryArguments(bits, n int) []int64 {
	hi := int64(1)<<(bits+1) - 1
	args := []int64{1, -1, 3, -3, hi, -hi}
	k := int64(n - len(args))
	step := 2 * (hi/k + 1)
	for d := -hi; d <= hi && len(args) < n; d += step {
		args = append(args, d)
	}
	return args
}

func TestIsPositiveBoundary(t *testing.T) {
	const lanes = 32
	for _, strategy := range []Strategy{EncodingSwitching, SchemeSwitching} {
		for _, bits := range SupportedBitWidths {
			t.Run(fmt.Sprintf("%s/%dbit", strategy, bits), func(t *testing.T) {
				req := Requirements{BitWidth: bits, Slots: lanes}
				if strategy == SchemeSwitching {
					skipSchemeSwitching(t)
				} else if _, ok := EncodingPresets[bits]; !ok {
					_, err := NewResolver(strategy, WithInsecure()).ResolveFor(req)
					require.ErrorIs(t, err, ErrUnsupportedBitWidth)
					return
				}
				b := newTestBridge(t, strategy, req)
				ctx := b.Context()

				args := boundaryArguments(bits, lanes)
				require.LessOrEqual(t, len(args), lanes)
				got := decrypt(t, ctx, mustIsPositive(t, b, encrypt(t, ctx, args...)))
				for i, d := range args {
					require.Equal(t, indicator(d > 0), got[i], "d=%d", d)
				}
			})
		}
	}
}

func mustIsPositive(t *testing.T, b *Bridge, d *Ciphertext) *Ciphertext {
	t.Helper()
	out, err := b.IsPositive(d)
	require.NoError(t, err)
	return out
}

func pairs(bits int) (xs, ys []int64) {
	hi := int64(1) << (bits / 2)
	for x := int64(0); x < hi; x += 3 {
		for y := int64(0); y < hi; y += 5 {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return
}

func checkComparisons(t *testing.T, b *Bridge, xs, ys []int64) {
	ctx := b.Context()
	x := encrypt(t, ctx, xs...)
	y := encrypt(t, ctx, ys...)

	gt, err := b.GreaterThan(x, y)
	require.NoError(t, err)
	ge, err := b.AtLeast(x, y)
	require.NoError(t, err)
	gtK, err := b.GreaterThanConst(x, 4)
	require.NoError(t, err)
	leK, err := b.AtMostConst(x, 4)
	require.NoError(t, err)

	gotGT, gotGE := decrypt(t, ctx, gt), decrypt(t, ctx, ge)
	gotGTK, gotLEK := decrypt(t, ctx, gtK), decrypt(t, ctx, leK)
	for i := range xs {
		require.Equal(t, indicator(xs[i] > ys[i]), gotGT[i], "%d > %d", xs[i], ys[i])
		require.Equal(t, indicator(xs[i] >= ys[i]), gotGE[i], "%d >= %d", xs[i], ys[i])
		require.Equal(t, indicator(xs[i] > 4), gotGTK[i], "%d > 4", xs[i])
		require.Equal(t, indicator(xs[i] <= 4), gotLEK[i], "%d <= 4", xs[i])
	}
}

func TestComparisons(t *testing.T) {
	xs, ys := pairs(8)
	t.Run("EncodingSwitching", func(t *testing.T) {
		b := newTestBridge(t, EncodingSwitching, Requirements{BitWidth: 8, Slots: len(xs)})
		checkComparisons(t, b, xs, ys)
	})
	t.Run("SchemeSwitching", func(t *testing.T) {
		skipSchemeSwitching(t)
		b := newTestBridge(t, SchemeSwitching, Requirements{BitWidth: 8, Slots: len(xs)})
		checkComparisons(t, b, xs, ys)
	})
}

func TestSchemeSwitchingFullRange(t *testing.T) {
	skipSchemeSwitching(t)
	const bits = 6
	b := newTestBridge(t, SchemeSwitching, Requirements{BitWidth: bits, Slots: 128})
	ctx := b.Context()

	var diffs []int64
	for d := -(int64(1)<<(bits+1) - 1); d < 1<<(bits+1); d += 2 {
		diffs = append(diffs, d)
	}
	got := decrypt(t, ctx, mustIsPositive(t, b, encrypt(t, ctx, diffs...)))
	for i, d := range diffs {
		require.Equal(t, indicator(d > 0), got[i], "d=%d", d)
	}
}

func checkSelect(t *testing.T, b *Bridge) {
	ctx := b.Context()
	mask := encrypt(t, ctx, 1, 0, 1, 0)
	x := encrypt(t, ctx, 7, 7, 3, 12)
	y := encrypt(t, ctx, 2, 9, 3, 5)

	out, err := b.Select(mask, x, y)
	require.NoError(t, err)
	require.Equal(t, []int64{7, 9, 3, 5}, decrypt(t, ctx, out))

	m, err := b.Min(x, y)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 7, 3, 5}, decrypt(t, ctx, m))

	gt, err := b.Compare(encrypt(t, ctx, 5, -3, -1, 7))
	require.NoError(t, err)
	out, err = b.SelectBoolean(gt, x, y)
	require.NoError(t, err)
	require.Equal(t, []int64{7, 9, 3, 12}, decrypt(t, ctx, out))
}

func TestSelect(t *testing.T) {
	req := Requirements{BitWidth: 6, Slots: 4, DepthAfter: 1}
	t.Run("EncodingSwitching", func(t *testing.T) {
		checkSelect(t, newTestBridge(t, EncodingSwitching, req))
	})
	t.Run("SchemeSwitching", func(t *testing.T) {
		skipSchemeSwitching(t)
		checkSelect(t, newTestBridge(t, SchemeSwitching, req))
	})
}

func TestLiftIdempotent(t *testing.T) {
	b := newTestBridge(t, EncodingSwitching, Requirements{BitWidth: 6, Slots: 4, DepthAfter: 1})
	ctx := b.Context()

	v, err := b.Compare(encrypt(t, ctx, 5, -5, 1, -1))
	require.NoError(t, err)
	require.False(t, v.Lifted())
	_, err = v.Value()
	require.ErrorIs(t, err, ErrNotLifted)

	lifted, err := b.Lift(v)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 0, 1, 0}, decrypt(t, ctx, lifted))

	wrapped := AsBoolean(lifted)
	require.True(t, wrapped.Lifted())
	again, err := b.Lift(wrapped)
	require.NoError(t, err)
	require.Same(t, lifted, again)
	again, err = b.Lift(AsBoolean(again))
	require.NoError(t, err)
	require.Same(t, lifted, again)

	value, err := wrapped.Value()
	require.NoError(t, err)
	require.Same(t, lifted, value)
	require.Nil(t, AsBoolean(nil))
}

func TestDimensionMismatch(t *testing.T) {
	b := newTestBridge(t, EncodingSwitching, Requirements{BitWidth: 6, Slots: 4, DepthAfter: 1})
	ctx := b.Context()
	x := encrypt(t, ctx, 1, 2, 3, 4)
	other := x.CopyNew()
	other.Slots = 3

	var dm *DimensionMismatch
	_, err := b.Compare(other)
	require.ErrorAs(t, err, &dm)
	require.Equal(t, 4, dm.Want)
	require.Equal(t, 3, dm.Got)

	_, err = b.Select(x, x, other)
	require.ErrorAs(t, err, &dm)
	_, err = ctx.Add(x, other)
	require.ErrorAs(t, err, &dm)
	_, err = b.Lift(&Boolean{strategy: EncodingSwitching, slots: 2})
	require.ErrorAs(t, err, &dm)
	_, err = ctx.Encrypt(make([]int64, 5))
	require.ErrorAs(t, err, &dm)

	_, err = b.Lift(&Boolean{strategy: SchemeSwitching, slots: 4})
	require.ErrorIs(t, err, ErrStrategyMismatch)
	_, err = b.Lift(nil)
	require.Error(t, err)
}

func TestContextArithmetic(t *testing.T) {
	b := newTestBridge(t, EncodingSwitching, Requirements{BitWidth: 8, Slots: 4, DepthAfter: 2})
	ctx := b.Context()
	x := encrypt(t, ctx, 3, -2, 0, 7)
	y := encrypt(t, ctx, 4, 5, 9, -1)

	sum, err := ctx.Sum(x, y, x)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 1, 9, 13}, decrypt(t, ctx, sum))

	prod, err := ctx.Product(x, y, y)
	require.NoError(t, err)
	require.Equal(t, []int64{48, -50, 0, 7}, decrypt(t, ctx, prod))

	c, err := ctx.MulConst(x, 3)
	require.NoError(t, err)
	c, err = ctx.AddConst(c, -1)
	require.NoError(t, err)
	require.Equal(t, []int64{8, -7, -1, 20}, decrypt(t, ctx, c))

	om, err := ctx.OneMinus(encrypt(t, ctx, 1, 0, 1, 0))
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1, 0, 1}, decrypt(t, ctx, om))

	_, err = ctx.Sum()
	require.Error(t, err)
	_, err = ctx.Product()
	require.Error(t, err)

	_, err = ctx.EncryptFloat([]float64{1})
	require.ErrorIs(t, err, ErrStrategyMismatch)
}

func TestShallowCopyConcurrent(t *testing.T) {
	b := newTestBridge(t, EncodingSwitching, Requirements{BitWidth: 6, Slots: 2, DepthAfter: 1})
	x := encrypt(t, b.Context(), 9, 1)
	y := encrypt(t, b.Context(), 4, 6)

	results := make([][]int64, 4)
	errs := make(chan error, len(results))
	for i := range results {
		go func() {
			bc := b.ShallowCopy()
			gt, err := bc.GreaterThan(x, y)
			if err == nil {
				results[i], err = bc.Context().Decrypt(gt)
			}
			errs <- err
		}()
	}
	for range results {
		require.NoError(t, <-errs)
	}
	for _, r := range results {
		require.Equal(t, []int64{1, 0}, r)
	}
}
