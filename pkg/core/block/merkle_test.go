// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package block_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

func leaves(n int) []block.Hash256 {
	out := make([]block.Hash256, n)
	for i := range out {
		out[i] = block.DoubleSHA256([]byte{byte(i)})
	}
	return out
}

func TestMerkleRootSingleLeaf(t *testing.T) {
	l := leaves(1)
	assert.Equal(t, l[0], block.MerkleRoot(l))
}

func TestMerkleProofVerifiesForEveryLeaf(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		l := leaves(n)
		root := block.MerkleRoot(l)
		for i := 0; i < n; i++ {
			proof, err := block.BuildMerkleProof(l, i)
			require.NoError(t, err)
			assert.Truef(t, block.VerifyMerkleProof(proof, root), "leaf %d/%d failed to verify", i, n)
		}
	}
}

func TestMerkleProofRejectsTamperedLeaf(t *testing.T) {
	l := leaves(4)
	root := block.MerkleRoot(l)
	proof, err := block.BuildMerkleProof(l, 2)
	require.NoError(t, err)

	proof.Leaf = block.DoubleSHA256([]byte("tampered"))
	assert.False(t, block.VerifyMerkleProof(proof, root))
}

func TestBuildMerkleProofRejectsOutOfRange(t *testing.T) {
	l := leaves(3)
	_, err := block.BuildMerkleProof(l, 3)
	require.Error(t, err)
}
