// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package utxo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
)

func fundedSet(t *testing.T, value uint64) (*utxo.Set, block.OutPoint) {
	t.Helper()
	set := utxo.New()
	op := block.OutPoint{TxHash: block.Hash256{1}, Index: 0}
	require.NoError(t, set.Add(op, utxo.Entry{Output: block.TxOutput{Value: value}, Height: 0}))
	return set, op
}

func TestApplyAndRollbackIsIdentity(t *testing.T) {
	set, funding := fundedSet(t, 10000)
	before := set.Snapshot()

	tx := &block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(funding, nil))
	tx.AddOutput(block.TxOutput{Value: 9000})

	undo, fee, err := set.ApplyTransaction(tx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), fee)
	assert.False(t, set.Has(funding))

	require.NoError(t, set.RollbackTransaction(undo))
	assert.True(t, set.Has(funding))
	assert.Equal(t, before.Len(), set.Len())
}

func TestApplyTransactionRejectsUnknownInput(t *testing.T) {
	set := utxo.New()
	tx := &block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(block.OutPoint{TxHash: block.Hash256{9}, Index: 0}, nil))
	tx.AddOutput(block.TxOutput{Value: 1})

	_, _, err := set.ApplyTransaction(tx, 1)
	require.Error(t, err)
	assert.False(t, set.Has(block.OutPoint{}))

	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindUtxoMissing, verr.Kind())
}

func TestApplyTransactionRejectsImmatureCoinbase(t *testing.T) {
	set := utxo.New()
	op := block.OutPoint{TxHash: block.Hash256{2}, Index: 0}
	require.NoError(t, set.Add(op, utxo.Entry{Output: block.TxOutput{Value: 5000}, Height: 10, IsCoinbase: true}))

	tx := &block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(op, nil))
	tx.AddOutput(block.TxOutput{Value: 4000})

	_, _, err := set.ApplyTransaction(tx, 10+block.CoinbaseMaturity-1)
	require.Error(t, err)

	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindMaturityUnmet, verr.Kind())
}

func TestApplyTransactionRejectsOutputsExceedingInputs(t *testing.T) {
	set, funding := fundedSet(t, 100)
	tx := &block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(funding, nil))
	tx.AddOutput(block.TxOutput{Value: 200})

	_, _, err := set.ApplyTransaction(tx, 1)
	require.Error(t, err)
	assert.True(t, set.Has(funding), "failed apply must not mutate the set")

	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindOutputOverspend, verr.Kind())
}

func TestApplyCoinbaseSkipsInputProcessing(t *testing.T) {
	set := utxo.New()
	tx := &block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(block.NullOutPoint(), []byte("height 1")))
	tx.AddOutput(block.TxOutput{Value: 5000000000})

	undo, fee, err := set.ApplyTransaction(tx, 1)
	require.NoError(t, err)
	assert.Zero(t, fee)
	assert.Empty(t, undo.SpentInputs)
	assert.Len(t, undo.CreatedOutputs, 1)
}
