// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package pow_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/pow"
)

// maxPossibleTarget is 2^256-1: every hash satisfies it, so mining
// against it terminates on the very first nonce tried.
func maxPossibleTarget() *big.Int {
	t := new(big.Int).Lsh(big.NewInt(1), 256)
	return t.Sub(t, big.NewInt(1))
}

func TestMineSucceedsAgainstTrivialTarget(t *testing.T) {
	m := pow.New()
	header := block.BlockHeader{Version: 1, Timestamp: 1700000000}

	result, err := m.Mine(header, maxPossibleTarget(), 0, 2)
	require.NoError(t, err)
	require.True(t, result.Success)

	header.Nonce = result.Nonce
	var buf bytes.Buffer
	require.NoError(t, block.MarshalHeader(&buf, &header))
	assert.Equal(t, block.DoubleSHA256(buf.Bytes()), result.Hash)
	assert.True(t, block.HeaderMeetsTarget(result.Hash, maxPossibleTarget()))
}

func TestMineFailsWhenBudgetExhausted(t *testing.T) {
	m := pow.New()
	header := block.BlockHeader{Version: 1}

	// The zero target is satisfied only by an all-zero hash, effectively
	// unreachable within a tiny iteration budget.
	result, err := m.Mine(header, big.NewInt(0), 16, 1)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.LessOrEqual(t, result.Iterations, uint64(17))
}
