// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/bridge"
)

func newBridge(t *testing.T, strategy bridge.Strategy, req bridge.Requirements) *bridge.Bridge {
	t.Helper()
	ps, err := bridge.NewResolver(strategy, bridge.WithInsecure()).ResolveFor(req)
	require.NoError(t, err)
	ctx, err := bridge.NewContext(ps)
	require.NoError(t, err)
	b, err := bridge.NewBridge(ctx)
	require.NoError(t, err)
	return b
}

// skipSchemeSwitching skips tests that run the blind rotation pipeline.
func skipSchemeSwitching(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("scheme switching pipeline skipped in short mode")
	}
}

var fixedTree = Tree{
	Depth:      2,
	Thresholds: []int64{5, 3, 8},
	Leaves:     []int64{10, 20, 30, 40},
}

// treeLanes returns the fixed feature vector followed by one random vector
// per seed.
func treeLanes(seeds int) [][]int64 {
	lanes := [][]int64{{6, 1, 9}}
	for seed := 1; seed <= seeds; seed++ {
		lanes = append(lanes, NewSource(uint64(seed)).Features(1, fixedTree.Depth, 100)[0])
	}
	return lanes
}

func TestTreeReference(t *testing.T) {
	require.Equal(t, int64(40), fixedTree.Evaluate([]int64{6, 1, 9}))
	require.Equal(t, int64(10), fixedTree.Evaluate([]int64{5, 3, 8}))
	require.Equal(t, int64(20), fixedTree.Evaluate([]int64{0, 4, 100}))
	require.Equal(t, int64(30), fixedTree.Evaluate([]int64{6, 100, 8}))
	require.NoError(t, fixedTree.Validate())
	require.Error(t, Tree{Depth: 2, Thresholds: []int64{1}, Leaves: []int64{1, 2, 3, 4}}.Validate())
}

func TestSortReference(t *testing.T) {
	ranks, sorted := SortReference([]int64{7, 2, 9, 4})
	require.Equal(t, []int64{2, 0, 3, 1}, ranks)
	require.Equal(t, []int64{2, 4, 7, 9}, sorted)

	// Ties share a rank: the pair collapses into one position.
	tied := []int64{3, 5, 3}
	require.True(t, HasTies(tied))
	ranks, sorted = SortReference(tied)
	require.Equal(t, []int64{0, 2, 0}, ranks)
	require.Equal(t, []int64{6, 0, 5}, sorted)
}

func testGraph(bits int) Graph {
	inf := Infinity(bits)
	return Graph{
		{0, 5, inf, 10},
		{inf, 0, 3, inf},
		{inf, inf, 0, 1},
		{inf, inf, inf, 0},
	}
}

func TestFloydWarshallReference(t *testing.T) {
	dist, pred := FloydWarshallReference(testGraph(8), 8)
	require.Equal(t, int64(9), dist[0][3])
	require.Equal(t, int64(8), dist[0][2])
	require.Equal(t, Infinity(8), dist[3][0])
	require.Equal(t, []int{0, 1, 2, 3}, Path(pred, 0, 3))
	require.Nil(t, Path(pred, 3, 0))
	require.Equal(t, []int{2}, Path(pred, 2, 2))
}

func TestRangeFilterReference(t *testing.T) {
	rows := []Row{
		{"salary": 500, "hours": 10, "bonus": 250},
		{"salary": 100, "hours": 1, "bonus": 50},
		{"salary": 600, "hours": 9, "bonus": 300},
	}
	count, sum := RangeFilterReference(EmployeeQuery, rows)
	require.Equal(t, int64(1), count)
	require.Equal(t, int64(250), sum)
	require.Equal(t, 1, EmployeeQuery.Where[0].Expr.Depth())
	require.Equal(t, 0, EmployeeQuery.Where[1].Expr.Depth())

	req := RangeFilterRequirements(16, 4, EmployeeQuery)
	require.Equal(t, 1, req.DepthBefore)
	require.Equal(t, 3, req.DepthAfter)
}

func TestAggregateMismatches(t *testing.T) {
	rows := []Row{
		{"salary": 500, "hours": 10, "bonus": 250},
		{"salary": 100, "hours": 1, "bonus": 50},
		{"salary": 600, "hours": 9, "bonus": 300},
	}
	mask := []int64{1, 0, 0}
	require.Zero(t, aggregateMismatches(EmployeeQuery, rows, mask, []int64{250, 0, 0}))

	// a correct mask does not hide a wrong SUM contribution
	require.Equal(t, 1, aggregateMismatches(EmployeeQuery, rows, mask, []int64{249, 0, 0}))
	require.Equal(t, 1, aggregateMismatches(EmployeeQuery, rows, mask, []int64{250, 50, 0}))
	require.Equal(t, 3, aggregateMismatches(EmployeeQuery, rows, mask, nil))

	require.Equal(t, 1, aggregateMismatches(EmployeeQuery, rows, []int64{0, 0, 0}, []int64{0, 0, 0}))

	countOnly := Query{Where: EmployeeQuery.Where}
	require.Zero(t, aggregateMismatches(countOnly, rows, mask, nil))
}

func TestDatabaseWidthRejected(t *testing.T) {
	for _, bits := range []int{6, 8, 12} {
		for _, strategy := range []bridge.Strategy{bridge.SchemeSwitching, bridge.EncodingSwitching} {
			c := RunConfig{Algorithm: AlgorithmDatabase, Strategy: strategy, BitWidth: bits, Size: 64}
			err := c.withDefaults().validate()
			var pe *bridge.ParameterError
			require.ErrorAs(t, err, &pe)
			require.ErrorIs(t, err, bridge.ErrUnsupportedBitWidth)
		}
	}
	c := RunConfig{Algorithm: AlgorithmDatabase, Strategy: bridge.SchemeSwitching, BitWidth: 16, Size: 64}
	require.NoError(t, c.withDefaults().validate())
}

func TestWorkloadReference(t *testing.T) {
	require.Equal(t, int64(1), W1.Reference([]int64{3, 4, 11}))
	require.Equal(t, int64(0), W1.Reference([]int64{3, 4, 12}))
	require.Equal(t, int64(7), W2.Reference([]int64{5, 4, 7}))
	require.Equal(t, int64(0), W2.Reference([]int64{4, 4, 7}))
	require.Equal(t, int64(1), W3.Reference([]int64{3, 5, 2, 7}))
	require.Equal(t, int64(0), W3.Reference([]int64{2, 7, 7, 2}))

	w, err := ParseWorkload("w3")
	require.NoError(t, err)
	require.Equal(t, W3, w)
	_, err = ParseWorkload("w4")
	require.Error(t, err)
}

func TestSourceDeterministic(t *testing.T) {
	a, b := NewSource(DefaultSeed), NewSource(DefaultSeed)
	for i := 0; i < 64; i++ {
		require.Equal(t, a.Uint64(), b.Uint64())
	}
	require.NotEqual(t, NewSource(1).Uint64(), NewSource(2).Uint64())

	src := NewSource(DefaultSeed)
	for _, v := range src.Values(256, 8) {
		require.GreaterOrEqual(t, v, int64(0))
		require.Less(t, v, int64(16))
	}
	for _, e := range src.Employees(64) {
		require.True(t, e.Salary >= 400 && e.Salary <= 800)
		require.True(t, e.Hours >= 6 && e.Hours <= 12)
		require.True(t, e.Bonus >= 50 && e.Bonus <= 350)
	}
	g := src.Graph(6, 8)
	require.NoError(t, g.Validate())
	for i := range g {
		require.Zero(t, g[i][i])
		for j := range g[i] {
			if i != j && g[i][j] != Infinity(8) {
				require.True(t, g[i][j] >= 1 && g[i][j] <= 64)
			}
		}
	}
}

func runTree(t *testing.T, strategy bridge.Strategy) {
	lanes := treeLanes(10)
	b := newBridge(t, strategy, DecisionTreeRequirements(8, len(lanes), fixedTree.Depth))
	dt := NewDecisionTree(b)

	model, err := dt.EncryptTree(fixedTree)
	require.NoError(t, err)
	features, err := dt.EncryptFeatures(fixedTree, lanes)
	require.NoError(t, err)

	out, err := dt.Run(features, model)
	require.NoError(t, err)
	got, err := b.Context().Decrypt(out)
	require.NoError(t, err)
	for l, f := range lanes {
		require.Equal(t, fixedTree.Evaluate(f), got[l], "lane %d features %v", l, f)
	}
}

func TestDecisionTree(t *testing.T) {
	t.Run("EncodingSwitching", func(t *testing.T) {
		runTree(t, bridge.EncodingSwitching)
	})
	t.Run("SchemeSwitching", func(t *testing.T) {
		skipSchemeSwitching(t)
		runTree(t, bridge.SchemeSwitching)
	})
}

func TestDecisionTreeFeatureMismatch(t *testing.T) {
	b := newBridge(t, bridge.EncodingSwitching, DecisionTreeRequirements(8, 1, fixedTree.Depth))
	dt := NewDecisionTree(b)
	model, err := dt.EncryptTree(fixedTree)
	require.NoError(t, err)

	_, err = dt.Run(model.Thresholds[:2], model)
	var dm *bridge.DimensionMismatch
	require.ErrorAs(t, err, &dm)
}

func runSort(t *testing.T, strategy bridge.Strategy, arrays [][]int64) ([][]int64, [][]int64) {
	b := newBridge(t, strategy, SortRequirements(6, len(arrays)))
	s := NewSorter(b)
	ctx := b.Context()

	in, err := EncryptColumns(ctx, arrays, len(arrays[0]))
	require.NoError(t, err)
	ranks, err := s.Ranks(in)
	require.NoError(t, err)
	sorted, err := s.Place(in, ranks)
	require.NoError(t, err)

	gotRanks, err := DecryptColumns(ctx, ranks, len(arrays))
	require.NoError(t, err)
	gotSorted, err := DecryptColumns(ctx, sorted, len(arrays))
	require.NoError(t, err)
	return gotRanks, gotSorted
}

func TestSort(t *testing.T) {
	arrays := [][]int64{{7, 2, 9, 4}, {1, 3, 0, 2}, {4, 6, 5, 7}}
	check := func(t *testing.T, strategy bridge.Strategy) {
		ranks, sorted := runSort(t, strategy, arrays)
		for l, a := range arrays {
			wantRanks, wantSorted := SortReference(a)
			require.Equal(t, wantRanks, ranks[l], "lane %d", l)
			require.Equal(t, wantSorted, sorted[l], "lane %d", l)
		}
		require.Equal(t, []int64{2, 0, 3, 1}, ranks[0])
		require.Equal(t, []int64{2, 4, 7, 9}, sorted[0])
	}
	t.Run("EncodingSwitching", func(t *testing.T) {
		check(t, bridge.EncodingSwitching)
	})
	t.Run("SchemeSwitching", func(t *testing.T) {
		skipSchemeSwitching(t)
		check(t, bridge.SchemeSwitching)
	})
}

func TestSortTieBoundary(t *testing.T) {
	a := []int64{3, 5, 3, 1}
	_, sorted := runSort(t, bridge.EncodingSwitching, [][]int64{a})
	_, want := SortReference(a)
	require.Equal(t, want, sorted[0])
	if HasTies(a) {
		t.Logf("tied input %v sorts to %v: equal elements share a rank", a, sorted[0])
	}
}

func runFloydWarshall(t *testing.T, strategy bridge.Strategy, bits int) {
	graphs := []Graph{testGraph(bits), NewSource(DefaultSeed).Graph(4, bits)}
	b := newBridge(t, strategy, FloydWarshallRequirements(bits, len(graphs), 4))
	fw := NewFloydWarshall(b)

	in, err := fw.EncryptGraphs(graphs, bits)
	require.NoError(t, err)
	out, err := fw.Run(in)
	require.NoError(t, err)
	dist, pred, err := fw.Decrypt(out, len(graphs))
	require.NoError(t, err)

	for l, g := range graphs {
		wantDist, wantPred := FloydWarshallReference(g, bits)
		require.Equal(t, wantDist, dist[l], "lane %d", l)
		require.Equal(t, wantPred, pred[l], "lane %d", l)
	}
	require.Equal(t, int64(9), dist[0][0][3])
	require.Equal(t, []int{0, 1, 2, 3}, Path(pred[0], 0, 3))
}

func TestFloydWarshall(t *testing.T) {
	t.Run("EncodingSwitching", func(t *testing.T) {
		if testing.Short() {
			t.Skip("deep circuit skipped in short mode")
		}
		runFloydWarshall(t, bridge.EncodingSwitching, 6)
	})
	t.Run("SchemeSwitching", func(t *testing.T) {
		skipSchemeSwitching(t)
		runFloydWarshall(t, bridge.SchemeSwitching, 8)
	})
}

func TestRangeFilter(t *testing.T) {
	t.Run("EncodingSwitching", func(t *testing.T) {
		q := Query{
			Where: []Between{{Expr: Product{Column("x"), Column("y")}, Lo: 20, Hi: 60}},
			Sum:   "x",
		}
		rows := []Row{{"x": 5, "y": 10}, {"x": 1, "y": 1}, {"x": 9, "y": 9}, {"x": 4, "y": 5}}
		b := newBridge(t, bridge.EncodingSwitching, RangeFilterRequirements(8, len(rows), q))
		f := NewRangeFilter(b)

		table, err := f.EncryptRows(rows)
		require.NoError(t, err)
		agg, err := f.Run(q, table)
		require.NoError(t, err)

		mask, err := b.Context().Decrypt(agg.Count)
		require.NoError(t, err)
		require.Equal(t, []int64{1, 0, 0, 1}, mask)

		count, sum, err := f.Totals(agg, len(rows))
		require.NoError(t, err)
		wantCount, wantSum := RangeFilterReference(q, rows)
		require.Equal(t, wantCount, count)
		require.Equal(t, wantSum, sum)
	})
	t.Run("SchemeSwitching", func(t *testing.T) {
		skipSchemeSwitching(t)
		q := Query{Where: []Between{{Expr: Product{Column("salary"), Column("hours")}, Lo: 5000, Hi: 6000}}}
		rows := []Row{{"salary": 500, "hours": 10}, {"salary": 100, "hours": 1}}
		b := newBridge(t, bridge.SchemeSwitching, RangeFilterRequirements(16, len(rows), q))
		f := NewRangeFilter(b)

		table, err := f.EncryptRows(rows)
		require.NoError(t, err)
		mask, err := f.Mask(q, table)
		require.NoError(t, err)
		got, err := b.Context().Decrypt(mask)
		require.NoError(t, err)
		require.Equal(t, []int64{1, 0}, got)
	})
	t.Run("MissingColumn", func(t *testing.T) {
		q := Query{Where: []Between{{Expr: Column("z"), Lo: 0, Hi: 1}}}
		b := newBridge(t, bridge.EncodingSwitching, RangeFilterRequirements(8, 1, q))
		f := NewRangeFilter(b)
		table, err := f.EncryptRows([]Row{{"x": 1}})
		require.NoError(t, err)
		_, err = f.Mask(q, table)
		require.ErrorContains(t, err, `column "z"`)
	})
}

func TestWorkloads(t *testing.T) {
	const bits, slots = 8, 8
	for _, w := range Workloads {
		t.Run(w.String(), func(t *testing.T) {
			b := newBridge(t, bridge.EncodingSwitching, w.Requirements(bits, slots))
			ctx := b.Context()
			lanes := NewSource(DefaultSeed).Lanes(slots, w.Arity(), bits)

			in, err := EncryptColumns(ctx, lanes, w.Arity())
			require.NoError(t, err)
			out, err := RunWorkload(b, w, in)
			require.NoError(t, err)
			got, err := ctx.Decrypt(out)
			require.NoError(t, err)
			for l, operands := range lanes {
				require.Equal(t, w.Reference(operands), got[l], "lane %d operands %v", l, operands)
			}
		})
	}
}
