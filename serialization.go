// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// header is the fixed prefix of a serialized Ciphertext.
type header struct {
	Slots uint32
	P     uint64
	R     uint32
}

// MarshalBinary serializes ct: lane count, plaintext-space tag, then the
// length-prefixed ring element.
func (ct *Ciphertext) MarshalBinary() ([]byte, error) {
	if ct.Empty() {
		return nil, fmt.Errorf("marshal ciphertext: empty ciphertext")
	}
	var buf bytes.Buffer

	h := header{Slots: uint32(ct.Slots), P: ct.Space.P, R: uint32(ct.Space.R)}
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}

	data, err := ct.Ciphertext.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal ciphertext: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes a ciphertext written by MarshalBinary.
func (ct *Ciphertext) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)

	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("unmarshal ciphertext: header: %w", err)
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("unmarshal ciphertext: length: %w", err)
	}
	if int(n) != r.Len() {
		return fmt.Errorf("unmarshal ciphertext: %d bytes declared, %d present", n, r.Len())
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("unmarshal ciphertext: %w", err)
	}

	inner := new(rlwe.Ciphertext)
	if err := inner.UnmarshalBinary(body); err != nil {
		return fmt.Errorf("unmarshal ciphertext: %w", err)
	}
	ct.Ciphertext = inner
	ct.Slots = int(h.Slots)
	ct.Space = PlaintextSpace{P: h.P, R: int(h.R)}
	return nil
}
