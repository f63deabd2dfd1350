// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCiphertextSerialization(t *testing.T) {
	ctx := newEncodingContext(t)
	ct := encrypt(t, ctx, 9, 3, 0, 27)
	div, err := ctx.DivideModByP(ct)
	require.NoError(t, err)

	data, err := div.MarshalBinary()
	require.NoError(t, err)

	var got Ciphertext
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, div.Slots, got.Slots)
	require.Equal(t, div.Space, got.Space)
	require.Equal(t, []int64{3, 1, 0, 9}, decrypt(t, ctx, &got))

	require.Error(t, got.UnmarshalBinary(data[:len(data)-1]))
	require.Error(t, got.UnmarshalBinary(nil))

	_, err = (&Ciphertext{Slots: 4}).MarshalBinary()
	require.Error(t, err)
}
