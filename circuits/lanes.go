// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package circuits drives the comparison bridge through complete encrypted
// algorithms: decision tree inference, rank sorting, all-pairs shortest
// paths, range filtering and the mixed arithmetic workloads.
//
// Every scalar of an algorithm is its own ciphertext and lane l of every
// ciphertext belongs to instance l, so instances never interact and no
// slot rotation is needed.
package circuits

import (
	"fmt"

	"github.com/luxfi/bridge"
)

// EncryptColumns encrypts instances laid out one per lane: ciphertext i
// holds instances[l][i] in lane l. Every instance must have width values.
func EncryptColumns(ctx *bridge.Context, instances [][]int64, width int) ([]*bridge.Ciphertext, error) {
	if len(instances) > ctx.Slots() {
		return nil, &bridge.DimensionMismatch{Op: "encrypt columns", Want: ctx.Slots(), Got: len(instances)}
	}
	out := make([]*bridge.Ciphertext, width)
	lanes := make([]int64, len(instances))
	for i := range out {
		for l, inst := range instances {
			if len(inst) != width {
				return nil, &bridge.DimensionMismatch{Op: "encrypt columns", Want: width, Got: len(inst)}
			}
			lanes[l] = inst[i]
		}
		ct, err := ctx.Encrypt(lanes)
		if err != nil {
			return nil, err
		}
		out[i] = ct
	}
	return out, nil
}

// DecryptColumns inverts EncryptColumns for the first n lanes.
func DecryptColumns(ctx *bridge.Context, cts []*bridge.Ciphertext, n int) ([][]int64, error) {
	out := make([][]int64, n)
	for l := range out {
		out[l] = make([]int64, len(cts))
	}
	for i, ct := range cts {
		lanes, err := ctx.Decrypt(ct)
		if err != nil {
			return nil, fmt.Errorf("decrypt column %d: %w", i, err)
		}
		for l := 0; l < n; l++ {
			out[l][i] = lanes[l]
		}
	}
	return out, nil
}

// Broadcast encrypts v into every lane.
func Broadcast(ctx *bridge.Context, v int64) (*bridge.Ciphertext, error) {
	lanes := make([]int64, ctx.Slots())
	for i := range lanes {
		lanes[i] = v
	}
	return ctx.Encrypt(lanes)
}

func broadcastAll(ctx *bridge.Context, vs []int64) ([]*bridge.Ciphertext, error) {
	out := make([]*bridge.Ciphertext, len(vs))
	for i, v := range vs {
		ct, err := Broadcast(ctx, v)
		if err != nil {
			return nil, err
		}
		out[i] = ct
	}
	return out, nil
}

// ceilLog2 returns the depth of a balanced product of n operands.
func ceilLog2(n int) int {
	d := 0
	for 1<<d < n {
		d++
	}
	return d
}
