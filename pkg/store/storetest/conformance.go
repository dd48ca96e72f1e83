// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package storetest is a shared conformance suite exercised against every
// registered BlockchainStore driver, adapted from the teacher's
// pkg/core/database/testing package which runs the same table against
// every registered database driver.
package storetest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
	"github.com/hybridledger/consensus-core/pkg/store"
)

// RunConformance exercises the full BlockchainStore contract against s,
// failing t on any deviation. Every registered driver must pass this.
func RunConformance(t *testing.T, s store.BlockchainStore) {
	t.Helper()

	genesis, err := block.CreateGenesis("conformance genesis", []byte("miner"))
	require.NoError(t, err)
	hash, err := genesis.Hash()
	require.NoError(t, err)

	require.NoError(t, s.PutBlock(genesis))
	assert.True(t, s.HasBlock(hash))

	got, err := s.GetBlockByHash(hash)
	require.NoError(t, err)
	gotHash, err := got.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, gotHash)

	byHeight, err := s.GetBlockByHeight(0)
	require.NoError(t, err)
	byHeightHash, err := byHeight.Hash()
	require.NoError(t, err)
	assert.Equal(t, hash, byHeightHash)

	require.NoError(t, s.PutBestBlockHash(hash))
	best, err := s.GetBestBlockHash()
	require.NoError(t, err)
	assert.Equal(t, hash, best)

	height, err := s.GetHeight()
	require.NoError(t, err)
	assert.Equal(t, uint32(0), height)

	coinbase := genesis.Coinbase()
	txid, err := coinbase.TxID()
	require.NoError(t, err)
	require.NoError(t, s.PutTx(txid, coinbase))
	assert.True(t, s.HasTx(txid))

	gotTx, err := s.GetTx(txid)
	require.NoError(t, err)
	gotTxid, err := gotTx.TxID()
	require.NoError(t, err)
	assert.Equal(t, txid, gotTxid)

	outpoint := block.OutPoint{TxHash: txid, Index: 0}
	entry := utxo.Entry{Output: coinbase.Outputs[0], Height: 0, IsCoinbase: true}
	require.NoError(t, s.PutUTXO(outpoint, entry))
	assert.True(t, s.HasUTXO(outpoint))

	gotEntry, err := s.GetUTXO(outpoint)
	require.NoError(t, err)
	assert.Equal(t, entry.Output.Value, gotEntry.Output.Value)
	assert.Equal(t, entry.Height, gotEntry.Height)
	assert.Equal(t, entry.IsCoinbase, gotEntry.IsCoinbase)

	count, err := s.GetUTXOCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, s.DeleteUTXO(outpoint))
	assert.False(t, s.HasUTXO(outpoint))
	count, err = s.GetUTXOCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)

	require.NoError(t, s.DeleteTx(txid))
	assert.False(t, s.HasTx(txid))

	require.NoError(t, s.DeleteBlock(hash))
	assert.False(t, s.HasBlock(hash))

	_, err = s.GetBlockByHash(hash)
	assert.Error(t, err)
	storeErr, ok := err.(*store.Error)
	require.True(t, ok)
	assert.Equal(t, store.NotFound, storeErr.Result)
}

// RunTransactionConformance exercises begin/commit atomicity against s.
func RunTransactionConformance(t *testing.T, s store.BlockchainStore) {
	t.Helper()

	genesis, err := block.CreateGenesis("txn conformance", []byte("miner"))
	require.NoError(t, err)
	hash, err := genesis.Hash()
	require.NoError(t, err)

	tx, err := s.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.PutBlock(genesis))
	require.NoError(t, tx.PutBestBlockHash(hash))
	require.NoError(t, tx.Commit())

	assert.True(t, s.HasBlock(hash))
	best, err := s.GetBestBlockHash()
	require.NoError(t, err)
	assert.Equal(t, hash, best)
}
