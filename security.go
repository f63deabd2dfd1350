// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import "fmt"

// SecurityLevel is the target classical security of a resolved ring.
type SecurityLevel int

const (
	// Security128 is 128-bit classical security (the default)
	Security128 SecurityLevel = 128
	// Security192 is 192-bit classical security
	Security192 SecurityLevel = 192
	// Security256 is 256-bit classical security
	Security256 SecurityLevel = 256
)

// String returns the string representation of the security level
func (s SecurityLevel) String() string {
	switch s {
	case Security128:
		return "128-bit"
	case Security192:
		return "192-bit"
	case Security256:
		return "256-bit"
	default:
		return fmt.Sprintf("SecurityLevel(%d)", int(s))
	}
}

// Maximum log2(QP) admitted per ring degree for ternary secrets, taken from
// the homomorphic encryption standard tables. LogN 17 extrapolates the
// doubling pattern of the published rows.
var maxLogQP = map[SecurityLevel]map[int]int{
	Security128: {10: 27, 11: 54, 12: 109, 13: 218, 14: 438, 15: 881, 16: 1761, 17: 3522},
	Security192: {10: 19, 11: 37, 12: 75, 13: 152, 14: 305, 15: 611, 16: 1228, 17: 2456},
	Security256: {10: 14, 11: 29, 12: 58, 13: 118, 14: 237, 15: 476, 16: 956, 17: 1912},
}

const (
	minSecureLogN = 10
	maxSecureLogN = 17
)

// MaxLogQP returns the largest total modulus, in bits, a ring of degree
// 2^logN may carry at this security level.
func (s SecurityLevel) MaxLogQP(logN int) (int, bool) {
	table, ok := maxLogQP[s]
	if !ok {
		return 0, false
	}
	bound, ok := table[logN]
	return bound, ok
}

func (s SecurityLevel) admits(logN int, logQP float64) bool {
	bound, ok := s.MaxLogQP(logN)
	return ok && logQP <= float64(bound)
}

func (s SecurityLevel) valid() bool {
	_, ok := maxLogQP[s]
	return ok
}
