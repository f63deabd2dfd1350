// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedBitWidth is wrapped by a ParameterError when no preset
	// exists for the requested integer width.
	ErrUnsupportedBitWidth = errors.New("unsupported bit width")
	// ErrUnsupportedStrategy is returned for an unknown Strategy value.
	ErrUnsupportedStrategy = errors.New("unsupported strategy")
	// ErrNotLifted is returned when a Boolean is used where a lifted
	// ciphertext is required.
	ErrNotLifted = errors.New("boolean ciphertext has not been lifted")
	// ErrStrategyMismatch is returned when a value produced under one
	// strategy is handed to a bridge running the other.
	ErrStrategyMismatch = errors.New("strategy mismatch")
)

// ParameterError reports a setup-time parameter problem: an unsupported bit
// width, an infeasible slot count, or a plaintext-modulus precondition
// violated by DivideModByP. It is never retried.
type ParameterError struct {
	Op       string
	BitWidth int
	Modulus  uint64
	Factor   uint64
	Reason   string
	Err      error
}

func (e *ParameterError) Error() string {
	msg := fmt.Sprintf("%s: parameter error", e.Op)
	if e.BitWidth != 0 {
		msg += fmt.Sprintf(" (bits=%d)", e.BitWidth)
	}
	if e.Modulus != 0 || e.Factor != 0 {
		msg += fmt.Sprintf(" (modulus=%d, factor=%d)", e.Modulus, e.Factor)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParameterError) Unwrap() error { return e.Err }

// DimensionMismatch reports ciphertexts whose slot counts disagree. It
// indicates a driver bug and aborts the current algorithm invocation.
type DimensionMismatch struct {
	Op   string
	Want int
	Got  int
}

func (e *DimensionMismatch) Error() string {
	return fmt.Sprintf("%s: dimension mismatch: want %d slots, got %d", e.Op, e.Want, e.Got)
}

func checkSlots(op string, want int, cts ...*Ciphertext) error {
	for _, ct := range cts {
		if ct == nil {
			return fmt.Errorf("%s: nil ciphertext", op)
		}
		if ct.Slots != want {
			return &DimensionMismatch{Op: op, Want: want, Got: ct.Slots}
		}
	}
	return nil
}
