// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"fmt"
	"sort"
	"strings"

	"github.com/luxfi/bridge"
)

// Table is an encrypted batch of rows, one row per lane, keyed by column.
type Table map[string]*bridge.Ciphertext

// Row is a plaintext row keyed by column.
type Row map[string]int64

// Expr is an integer expression over the columns of a row.
type Expr interface {
	// Eval evaluates the expression on every lane of t.
	Eval(ctx *bridge.Context, t Table) (*bridge.Ciphertext, error)
	// Value evaluates the expression on a plaintext row.
	Value(r Row) int64
	// Depth is the number of levels Eval consumes.
	Depth() int
	String() string
}

// Column reads a named column.
type Column string

func (c Column) Eval(_ *bridge.Context, t Table) (*bridge.Ciphertext, error) {
	ct, ok := t[string(c)]
	if !ok {
		return nil, fmt.Errorf("column %q: not in table", string(c))
	}
	return ct, nil
}

func (c Column) Value(r Row) int64 { return r[string(c)] }
func (c Column) Depth() int        { return 0 }
func (c Column) String() string    { return string(c) }

// Product multiplies two expressions.
type Product struct{ Left, Right Expr }

func (p Product) Eval(ctx *bridge.Context, t Table) (*bridge.Ciphertext, error) {
	l, r, err := evalPair(ctx, t, p.Left, p.Right)
	if err != nil {
		return nil, err
	}
	return ctx.Mul(l, r)
}

func (p Product) Value(r Row) int64 { return p.Left.Value(r) * p.Right.Value(r) }
func (p Product) Depth() int        { return max(p.Left.Depth(), p.Right.Depth()) + 1 }
func (p Product) String() string    { return p.Left.String() + " * " + p.Right.String() }

// Sum adds two expressions.
type Sum struct{ Left, Right Expr }

func (s Sum) Eval(ctx *bridge.Context, t Table) (*bridge.Ciphertext, error) {
	l, r, err := evalPair(ctx, t, s.Left, s.Right)
	if err != nil {
		return nil, err
	}
	return ctx.Add(l, r)
}

func (s Sum) Value(r Row) int64 { return s.Left.Value(r) + s.Right.Value(r) }
func (s Sum) Depth() int        { return max(s.Left.Depth(), s.Right.Depth()) }
func (s Sum) String() string    { return s.Left.String() + " + " + s.Right.String() }

func evalPair(ctx *bridge.Context, t Table, a, b Expr) (*bridge.Ciphertext, *bridge.Ciphertext, error) {
	l, err := a.Eval(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	r, err := b.Eval(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

// Between is the predicate Lo <= Expr <= Hi.
type Between struct {
	Expr   Expr
	Lo, Hi int64
}

// Match evaluates the predicate on a plaintext row.
func (b Between) Match(r Row) bool {
	v := b.Expr.Value(r)
	return v >= b.Lo && v <= b.Hi
}

func (b Between) String() string {
	return fmt.Sprintf("%s BETWEEN %d AND %d", b.Expr, b.Lo, b.Hi)
}

// Query is a conjunction of range predicates with an optional SUM column.
type Query struct {
	Where []Between
	Sum   string
}

// EmployeeQuery is the reference query of the employee table.
var EmployeeQuery = Query{
	Where: []Between{
		{Expr: Product{Column("salary"), Column("hours")}, Lo: 5000, Hi: 6000},
		{Expr: Sum{Column("salary"), Column("bonus")}, Lo: 700, Hi: 800},
	},
	Sum: "bonus",
}

// Match reports whether r satisfies every predicate.
func (q Query) Match(r Row) bool {
	for _, p := range q.Where {
		if !p.Match(r) {
			return false
		}
	}
	return true
}

func (q Query) String() string {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*)")
	if q.Sum != "" {
		fmt.Fprintf(&sb, ", SUM(%s)", q.Sum)
	}
	sb.WriteString(" WHERE ")
	for i, p := range q.Where {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(p.String())
	}
	return sb.String()
}

// RangeFilterRequirements returns the budget of q: the deepest predicate
// expression before the comparisons, then the membership product, the
// conjunction tree and the masked sum after.
func RangeFilterRequirements(bitWidth, slots int, q Query) bridge.Requirements {
	before := 0
	for _, p := range q.Where {
		before = max(before, p.Expr.Depth())
	}
	after := 1 + ceilLog2(len(q.Where))
	if q.Sum != "" {
		after++
	}
	return bridge.Requirements{
		BitWidth:    bitWidth,
		Slots:       slots,
		Rounds:      1,
		DepthBefore: before,
		DepthAfter:  after,
	}
}

// Aggregate holds the per-lane contributions of one batch: Count is the
// match mask and Sum the masked SUM column. Lane totals are summed after
// decryption.
type Aggregate struct {
	Count *bridge.Ciphertext
	Sum   *bridge.Ciphertext
}

// RangeFilter evaluates range queries on encrypted tables.
type RangeFilter struct {
	b *bridge.Bridge
}

// NewRangeFilter returns a range filter over b.
func NewRangeFilter(b *bridge.Bridge) *RangeFilter {
	return &RangeFilter{b: b}
}

// EncryptRows encrypts rows one per lane, one ciphertext per column.
func (f *RangeFilter) EncryptRows(rows []Row) (Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("encrypt rows: no rows")
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	t := make(Table, len(cols))
	lanes := make([]int64, len(rows))
	for _, c := range cols {
		for l, r := range rows {
			lanes[l] = r[c]
		}
		ct, err := f.b.Context().Encrypt(lanes)
		if err != nil {
			return nil, fmt.Errorf("encrypt column %q: %w", c, err)
		}
		t[c] = ct
	}
	return t, nil
}

// Membership returns [lo <= v]*[v <= hi] for every lane.
func (f *RangeFilter) Membership(v *bridge.Ciphertext, lo, hi int64) (*bridge.Ciphertext, error) {
	ge, err := f.b.AtLeastConst(v, lo)
	if err != nil {
		return nil, err
	}
	le, err := f.b.AtMostConst(v, hi)
	if err != nil {
		return nil, err
	}
	return f.b.Context().Mul(ge, le)
}

// Mask returns the conjunction of every predicate of q as a 0/1 lane mask.
func (f *RangeFilter) Mask(q Query, t Table) (*bridge.Ciphertext, error) {
	if len(q.Where) == 0 {
		return nil, fmt.Errorf("range filter: query has no predicates")
	}
	ctx := f.b.Context()
	ms := make([]*bridge.Ciphertext, len(q.Where))
	for i, p := range q.Where {
		v, err := p.Expr.Eval(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("range filter %s: %w", p, err)
		}
		if ms[i], err = f.Membership(v, p.Lo, p.Hi); err != nil {
			return nil, fmt.Errorf("range filter %s: %w", p, err)
		}
	}
	return ctx.Product(ms...)
}

// Run evaluates q on one encrypted batch.
func (f *RangeFilter) Run(q Query, t Table) (*Aggregate, error) {
	mask, err := f.Mask(q, t)
	if err != nil {
		return nil, err
	}
	agg := &Aggregate{Count: mask}
	if q.Sum != "" {
		col, err := Column(q.Sum).Eval(f.b.Context(), t)
		if err != nil {
			return nil, fmt.Errorf("range filter: %w", err)
		}
		if agg.Sum, err = f.b.Context().Mul(mask, col); err != nil {
			return nil, fmt.Errorf("range filter: sum %s: %w", q.Sum, err)
		}
	}
	return agg, nil
}

// Totals decrypts an aggregate and sums its first lanes lanes.
func (f *RangeFilter) Totals(agg *Aggregate, lanes int) (count, sum int64, err error) {
	ctx := f.b.Context()
	vs, err := ctx.Decrypt(agg.Count)
	if err != nil {
		return 0, 0, err
	}
	for _, v := range vs[:lanes] {
		count += v
	}
	if agg.Sum == nil {
		return count, 0, nil
	}
	if vs, err = ctx.Decrypt(agg.Sum); err != nil {
		return 0, 0, err
	}
	for _, v := range vs[:lanes] {
		sum += v
	}
	return count, sum, nil
}

// Employee is a row of the employee table.
type Employee struct {
	Salary int64
	Hours  int64
	Bonus  int64
}

// Row returns e keyed by column name.
func (e Employee) Row() Row {
	return Row{"salary": e.Salary, "hours": e.Hours, "bonus": e.Bonus}
}

// EmployeeRows converts a table of employees to rows.
func EmployeeRows(es []Employee) []Row {
	rows := make([]Row, len(es))
	for i, e := range es {
		rows[i] = e.Row()
	}
	return rows
}
