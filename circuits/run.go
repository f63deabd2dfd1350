// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/bridge"
)

// Algorithm names an end-to-end driver.
type Algorithm string

const (
	AlgorithmTree     Algorithm = "tree"
	AlgorithmSort     Algorithm = "sort"
	AlgorithmFloyd    Algorithm = "floyd"
	AlgorithmDatabase Algorithm = "db"
	AlgorithmWorkload Algorithm = "workload"
)

// Algorithms lists every driver.
var Algorithms = []Algorithm{AlgorithmTree, AlgorithmSort, AlgorithmFloyd, AlgorithmDatabase, AlgorithmWorkload}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(name)
	if !slices.Contains(Algorithms, a) {
		return "", fmt.Errorf("unknown algorithm %q", name)
	}
	return a, nil
}

// RunConfig describes one end-to-end encrypted run. Size is the tree depth,
// the array length, the node count or the row count, depending on the
// algorithm.
type RunConfig struct {
	Algorithm Algorithm
	Strategy  bridge.Strategy
	BitWidth  int
	Size      int
	Slots     int
	Seed      uint64
	Workload  Workload
	Insecure  bool
	// Batches is the number of independent input batches. The database
	// query derives it from Size and Slots.
	Batches int
	// Parallel bounds the batches evaluated at once.
	Parallel int
}

func (c RunConfig) withDefaults() RunConfig {
	if c.Slots < 1 {
		c.Slots = 1
	}
	if c.Batches < 1 {
		c.Batches = 1
	}
	if c.Parallel < 1 {
		c.Parallel = 1
	}
	if c.Algorithm == AlgorithmWorkload && c.Workload == 0 {
		c.Workload = W1
	}
	if c.Algorithm == AlgorithmDatabase {
		c.Batches = (c.Size + c.Slots - 1) / c.Slots
	}
	return c
}

func (c RunConfig) validate() error {
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	if c.Size < 1 {
		return fmt.Errorf("%s: size %d, need at least 1", c.Algorithm, c.Size)
	}
	if c.Algorithm == AlgorithmDatabase && c.BitWidth < 16 {
		return &bridge.ParameterError{Op: string(c.Algorithm), BitWidth: c.BitWidth,
			Reason: "salary*hours needs a 16-bit width", Err: bridge.ErrUnsupportedBitWidth}
	}
	return nil
}

// Requirements returns the depth budget of the configured algorithm.
func (c RunConfig) Requirements() bridge.Requirements {
	c = c.withDefaults()
	switch c.Algorithm {
	case AlgorithmTree:
		return DecisionTreeRequirements(c.BitWidth, c.Slots, c.Size)
	case AlgorithmSort:
		return SortRequirements(c.BitWidth, c.Slots)
	case AlgorithmFloyd:
		return FloydWarshallRequirements(c.BitWidth, c.Slots, c.Size)
	case AlgorithmDatabase:
		return RangeFilterRequirements(c.BitWidth, c.Slots, EmployeeQuery)
	}
	return c.Workload.Requirements(c.BitWidth, c.Slots)
}

// Report is the outcome of a run. Durations are wall clock; Eval holds one
// entry per batch.
type Report struct {
	Algorithm  Algorithm       `json:"algorithm"`
	Strategy   string          `json:"strategy"`
	BitWidth   int             `json:"bit_width"`
	Size       int             `json:"size"`
	Slots      int             `json:"slots"`
	Seed       uint64          `json:"seed"`
	Workload   string          `json:"workload,omitempty"`
	Params     string          `json:"params"`
	LogN       int             `json:"log_n"`
	MaxLevel   int             `json:"max_level"`
	LogQP      float64         `json:"log_qp"`
	Setup      time.Duration   `json:"setup_ns"`
	Encrypt    time.Duration   `json:"encrypt_ns"`
	Eval       []time.Duration `json:"eval_ns"`
	Decrypt    time.Duration   `json:"decrypt_ns"`
	Total      time.Duration   `json:"total_ns"`
	Lanes      int             `json:"lanes"`
	Mismatches int             `json:"mismatches"`
}

// Verified reports whether every lane matched its plaintext reference.
func (r *Report) Verified() bool { return r.Mismatches == 0 }

// batch is one independent set of instances, one per lane.
type batch interface {
	encrypt(b *bridge.Bridge) error
	eval(b *bridge.Bridge) error
	// verify decrypts the result and returns the number of lanes that
	// disagree with the plaintext reference.
	verify(b *bridge.Bridge) (lanes, mismatches int, err error)
}

type batchTiming struct {
	encrypt, eval, decrypt time.Duration
	lanes, mismatches      int
}

// Run generates inputs from the seed, encrypts them, evaluates the
// algorithm and checks every lane against the plaintext reference. Batches
// run concurrently on shallow copies of one bridge.
func Run(ctx context.Context, cfg RunConfig) (*Report, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	var opts []bridge.ResolverOption
	if cfg.Insecure {
		opts = append(opts, bridge.WithInsecure())
	}
	ps, err := bridge.NewResolver(cfg.Strategy, opts...).ResolveFor(cfg.Requirements())
	if err != nil {
		return nil, err
	}
	bctx, err := bridge.NewContext(ps)
	if err != nil {
		return nil, err
	}
	b, err := bridge.NewBridge(bctx)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Algorithm: cfg.Algorithm,
		Strategy:  cfg.Strategy.String(),
		BitWidth:  cfg.BitWidth,
		Size:      cfg.Size,
		Slots:     cfg.Slots,
		Seed:      cfg.Seed,
		Params:    ps.String(),
		LogN:      ps.LogN(),
		MaxLevel:  ps.MaxLevel(),
		LogQP:     ps.LogQP(),
		Setup:     time.Since(start),
	}
	if cfg.Algorithm == AlgorithmWorkload {
		rep.Workload = cfg.Workload.String()
	}

	src := NewSource(cfg.Seed)
	batches := make([]batch, cfg.Batches)
	for i := range batches {
		batches[i] = newBatch(cfg, src, i)
	}

	timings := make([]batchTiming, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for i, bt := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t, err := runBatch(b.ShallowCopy(), bt)
			if err != nil {
				return fmt.Errorf("%s batch %d: %w", cfg.Algorithm, i, err)
			}
			timings[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, t := range timings {
		rep.Encrypt += t.encrypt
		rep.Eval = append(rep.Eval, t.eval)
		rep.Decrypt += t.decrypt
		rep.Lanes += t.lanes
		rep.Mismatches += t.mismatches
	}
	rep.Total = time.Since(start)
	return rep, nil
}

func runBatch(b *bridge.Bridge, bt batch) (t batchTiming, err error) {
	start := time.Now()
	if err = bt.encrypt(b); err != nil {
		return t, err
	}
	t.encrypt = time.Since(start)

	start = time.Now()
	if err = bt.eval(b); err != nil {
		return t, err
	}
	t.eval = time.Since(start)

	start = time.Now()
	if t.lanes, t.mismatches, err = bt.verify(b); err != nil {
		return t, err
	}
	t.decrypt = time.Since(start)
	return t, nil
}

// newBatch draws the inputs of batch i. Inputs are drawn sequentially from
// src before any batch runs, so a seed fixes every batch.
func newBatch(cfg RunConfig, src *Source, i int) batch {
	switch cfg.Algorithm {
	case AlgorithmTree:
		bound := TreeBound(cfg.BitWidth)
		return &treeBatch{
			tree:     src.Tree(cfg.Size, bound),
			features: src.Features(cfg.Slots, cfg.Size, bound),
		}
	case AlgorithmSort:
		return &sortBatch{arrays: src.Lanes(cfg.Slots, cfg.Size, cfg.BitWidth)}
	case AlgorithmFloyd:
		graphs := make([]Graph, cfg.Slots)
		for l := range graphs {
			graphs[l] = src.Graph(cfg.Size, cfg.BitWidth)
		}
		return &floydBatch{graphs: graphs, bitWidth: cfg.BitWidth}
	case AlgorithmDatabase:
		rows := min(cfg.Slots, cfg.Size-i*cfg.Slots)
		return &dbBatch{rows: EmployeeRows(src.Employees(rows))}
	}
	return &workloadBatch{w: cfg.Workload, operands: src.Lanes(cfg.Slots, cfg.Workload.Arity(), cfg.BitWidth)}
}

type treeBatch struct {
	tree     Tree
	features [][]int64
	model    *EncryptedTree
	in       []*bridge.Ciphertext
	out      *bridge.Ciphertext
}

func (t *treeBatch) encrypt(b *bridge.Bridge) (err error) {
	dt := NewDecisionTree(b)
	if t.model, err = dt.EncryptTree(t.tree); err != nil {
		return err
	}
	t.in, err = dt.EncryptFeatures(t.tree, t.features)
	return err
}

func (t *treeBatch) eval(b *bridge.Bridge) (err error) {
	t.out, err = NewDecisionTree(b).Run(t.in, t.model)
	return err
}

func (t *treeBatch) verify(b *bridge.Bridge) (int, int, error) {
	got, err := b.Context().Decrypt(t.out)
	if err != nil {
		return 0, 0, err
	}
	bad := 0
	for l, f := range t.features {
		if got[l] != t.tree.Evaluate(f) {
			bad++
		}
	}
	return len(t.features), bad, nil
}

type sortBatch struct {
	arrays [][]int64
	in     []*bridge.Ciphertext
	out    []*bridge.Ciphertext
}

func (s *sortBatch) encrypt(b *bridge.Bridge) (err error) {
	s.in, err = EncryptColumns(b.Context(), s.arrays, len(s.arrays[0]))
	return err
}

func (s *sortBatch) eval(b *bridge.Bridge) (err error) {
	s.out, err = NewSorter(b).Run(s.in)
	return err
}

func (s *sortBatch) verify(b *bridge.Bridge) (int, int, error) {
	got, err := DecryptColumns(b.Context(), s.out, len(s.arrays))
	if err != nil {
		return 0, 0, err
	}
	bad := 0
	for l, a := range s.arrays {
		if _, want := SortReference(a); !slices.Equal(want, got[l]) {
			bad++
		}
	}
	return len(s.arrays), bad, nil
}

type floydBatch struct {
	graphs   []Graph
	bitWidth int
	in, out  *Paths
}

func (f *floydBatch) encrypt(b *bridge.Bridge) (err error) {
	f.in, err = NewFloydWarshall(b).EncryptGraphs(f.graphs, f.bitWidth)
	return err
}

func (f *floydBatch) eval(b *bridge.Bridge) (err error) {
	f.out, err = NewFloydWarshall(b).Run(f.in)
	return err
}

func (f *floydBatch) verify(b *bridge.Bridge) (int, int, error) {
	dist, pred, err := NewFloydWarshall(b).Decrypt(f.out, len(f.graphs))
	if err != nil {
		return 0, 0, err
	}
	bad := 0
	for l, g := range f.graphs {
		wantDist, wantPred := FloydWarshallReference(g, f.bitWidth)
		if !graphEqual(wantDist, dist[l]) || !graphEqual(wantPred, pred[l]) {
			bad++
		}
	}
	return len(f.graphs), bad, nil
}

func graphEqual(a, b Graph) bool {
	return slices.EqualFunc(a, b, func(x, y []int64) bool { return slices.Equal(x, y) })
}

type dbBatch struct {
	rows  []Row
	table Table
	agg   *Aggregate
}

func (d *dbBatch) encrypt(b *bridge.Bridge) (err error) {
	d.table, err = NewRangeFilter(b).EncryptRows(d.rows)
	return err
}

func (d *dbBatch) eval(b *bridge.Bridge) (err error) {
	d.agg, err = NewRangeFilter(b).Run(EmployeeQuery, d.table)
	return err
}

func (d *dbBatch) verify(b *bridge.Bridge) (int, int, error) {
	ctx := b.Context()
	mask, err := ctx.Decrypt(d.agg.Count)
	if err != nil {
		return 0, 0, err
	}
	var sums []int64
	if d.agg.Sum != nil {
		if sums, err = ctx.Decrypt(d.agg.Sum); err != nil {
			return 0, 0, err
		}
	}
	return len(d.rows), aggregateMismatches(EmployeeQuery, d.rows, mask, sums), nil
}

// aggregateMismatches counts the rows whose decrypted match mask or masked
// SUM contribution differs from the plaintext query.
func aggregateMismatches(q Query, rows []Row, mask, sums []int64) int {
	bad := 0
	for l, r := range rows {
		want := int64(0)
		if q.Match(r) {
			want = 1
		}
		ok := l < len(mask) && mask[l] == want
		if q.Sum != "" {
			ok = ok && l < len(sums) && sums[l] == want*r[q.Sum]
		}
		if !ok {
			bad++
		}
	}
	return bad
}

type workloadBatch struct {
	w        Workload
	operands [][]int64
	in       []*bridge.Ciphertext
	out      *bridge.Ciphertext
}

func (w *workloadBatch) encrypt(b *bridge.Bridge) (err error) {
	w.in, err = EncryptColumns(b.Context(), w.operands, w.w.Arity())
	return err
}

func (w *workloadBatch) eval(b *bridge.Bridge) (err error) {
	w.out, err = RunWorkload(b, w.w, w.in)
	return err
}

func (w *workloadBatch) verify(b *bridge.Bridge) (int, int, error) {
	got, err := b.Context().Decrypt(w.out)
	if err != nil {
		return 0, 0, err
	}
	bad := 0
	for l, ops := range w.operands {
		if got[l] != w.w.Reference(ops) {
			bad++
		}
	}
	return len(w.operands), bad, nil
}
