// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package circuits

import (
	"fmt"
	"strings"

	"github.com/luxfi/bridge"
)

// Workload is one of the mixed arithmetic and comparison kernels.
type Workload int

const (
	// W1 is (a*b) > c: a product feeding a comparison.
	W1 Workload = iota + 1
	// W2 is [a > b]*c: a comparison feeding a product.
	W2
	// W3 is (a*b) > (c*d): two products feeding a comparison.
	W3
)

// Workloads lists every workload in order.
var Workloads = []Workload{W1, W2, W3}

func (w Workload) String() string {
	switch w {
	case W1:
		return "W1"
	case W2:
		return "W2"
	case W3:
		return "W3"
	}
	return fmt.Sprintf("Workload(%d)", int(w))
}

// Formula returns the workload as an expression.
func (w Workload) Formula() string {
	switch w {
	case W1:
		return "(a*b) > c"
	case W2:
		return "[a > b]*c"
	case W3:
		return "(a*b) > (c*d)"
	}
	return ""
}

// ParseWorkload parses w1..w3, case-insensitively.
func ParseWorkload(name string) (Workload, error) {
	for _, w := range Workloads {
		if strings.EqualFold(name, w.String()) {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown workload %q", name)
}

// Arity returns the number of operands.
func (w Workload) Arity() int {
	if w == W3 {
		return 4
	}
	return 3
}

// Requirements returns the depth budget of w.
func (w Workload) Requirements(bitWidth, slots int) bridge.Requirements {
	req := bridge.Requirements{BitWidth: bitWidth, Slots: slots, Rounds: 1}
	switch w {
	case W1, W3:
		req.DepthBefore = 1
	case W2:
		req.DepthAfter = 1
	}
	return req
}

// Reference evaluates w on plaintext operands.
func (w Workload) Reference(in []int64) int64 {
	switch w {
	case W1:
		return b2i(in[0]*in[1] > in[2])
	case W2:
		return b2i(in[0] > in[1]) * in[2]
	case W3:
		return b2i(in[0]*in[1] > in[2]*in[3])
	}
	return 0
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// RunWorkload evaluates w on encrypted operands, one instance per lane.
func RunWorkload(b *bridge.Bridge, w Workload, in []*bridge.Ciphertext) (*bridge.Ciphertext, error) {
	if len(in) != w.Arity() {
		return nil, &bridge.DimensionMismatch{Op: w.String(), Want: w.Arity(), Got: len(in)}
	}
	ctx := b.Context()
	switch w {
	case W1:
		ab, err := ctx.Mul(in[0], in[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w, err)
		}
		return b.GreaterThan(ab, in[2])
	case W2:
		gt, err := b.GreaterThan(in[0], in[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w, err)
		}
		return ctx.Mul(gt, in[2])
	case W3:
		ab, err := ctx.Mul(in[0], in[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w, err)
		}
		cd, err := ctx.Mul(in[2], in[3])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", w, err)
		}
		return b.GreaterThan(ab, cd)
	}
	return nil, fmt.Errorf("%s: unknown workload", w)
}
