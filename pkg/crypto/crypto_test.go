// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/crypto"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	ctx := crypto.Default()
	sk, err := ctx.GeneratePrivateKey()
	require.NoError(t, err)
	pk := ctx.DerivePublicKey(sk)

	msg := ctx.DoubleSHA256([]byte("block header"))
	sig, err := ctx.Sign(msg, sk)
	require.NoError(t, err)

	assert.True(t, ctx.Verify(msg, sig, pk))
}

func TestVerifyRejectsWrongMessage(t *testing.T) {
	ctx := crypto.Default()
	sk, err := ctx.GeneratePrivateKey()
	require.NoError(t, err)
	pk := ctx.DerivePublicKey(sk)

	sig, err := ctx.Sign(ctx.DoubleSHA256([]byte("a")), sk)
	require.NoError(t, err)

	assert.False(t, ctx.Verify(ctx.DoubleSHA256([]byte("b")), sig, pk))
}

func TestCompressedPublicKeyRoundTrips(t *testing.T) {
	ctx := crypto.Default()
	sk, err := ctx.GeneratePrivateKey()
	require.NoError(t, err)
	pk := ctx.DerivePublicKey(sk)

	assert.True(t, ctx.IsValidPublicKey(pk[:]))
}

func TestDeterministicPRNGIsReproducible(t *testing.T) {
	seed := block.Hash256{1, 2, 3, 4, 5, 6, 7, 8}

	a := crypto.NewDeterministicPRNG(seed)
	b := crypto.NewDeterministicPRNG(seed)

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Uint64(), b.Uint64())
	}
}

func TestDeterministicPRNGDiffersAcrossSeeds(t *testing.T) {
	a := crypto.NewDeterministicPRNG(block.Hash256{1})
	b := crypto.NewDeterministicPRNG(block.Hash256{2})
	assert.NotEqual(t, a.Uint64(), b.Uint64())
}
