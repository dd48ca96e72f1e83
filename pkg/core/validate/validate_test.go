// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package validate_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/script"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
	"github.com/hybridledger/consensus-core/pkg/core/validate"
)

// fundedOutpoint seeds set with an entry worth value, created at height and
// flagged as coinbase output when coinbase is set, and returns the outpoint
// referencing it.
func fundedOutpoint(t *testing.T, set *utxo.Set, value uint64, script []byte, height uint32, coinbase bool) block.OutPoint {
	t.Helper()
	op := block.OutPoint{TxHash: block.Hash256{byte(value)}, Index: 0}
	require.NoError(t, set.Add(op, utxo.Entry{
		Output:     block.TxOutput{Value: value, LockingScript: script},
		Height:     height,
		IsCoinbase: coinbase,
	}))
	return op
}

func coinbaseTx(reward uint64, height uint32) block.Transaction {
	tx := block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(block.NullOutPoint(), []byte{byte(height)}))
	tx.AddOutput(block.TxOutput{Value: reward, LockingScript: []byte("miner")})
	return tx
}

func buildBlock(t *testing.T, height uint32, txs []block.Transaction, bits uint32) *block.Block {
	t.Helper()
	txids := make([]block.Hash256, len(txs))
	for i := range txs {
		id, err := txs[i].TxID()
		require.NoError(t, err)
		txids[i] = id
	}
	b := &block.Block{
		Header: block.BlockHeader{
			Version:          1,
			Timestamp:        1700000000,
			DifficultyTarget: bits,
			Height:           height,
			MerkleRoot:       block.MerkleRoot(txids),
		},
		Transactions: txs,
	}
	sealBlock(t, b)
	return b
}

// sealBlock advances b's nonce until its header hash meets the target
// encoded in its DifficultyTarget.
func sealBlock(t *testing.T, b *block.Block) {
	t.Helper()
	target, err := block.CompactToTarget(b.Header.DifficultyTarget)
	require.NoError(t, err)
	for {
		hash, err := b.Hash()
		require.NoError(t, err)
		if block.HeaderMeetsTarget(hash, target) {
			return
		}
		b.Header.Nonce++
	}
}

// trivialBits is a compact target just under 2^255: about half of all
// header hashes meet it, so sealBlock finds a valid nonce within a few tries.
const trivialBits = 0x207fffff

func TestValidateAcceptsWellFormedBlock(t *testing.T) {
	set := utxo.New()
	spendScript := []byte("owner")
	op := fundedOutpoint(t, set, 5000, spendScript, 0, false)

	spend := block.Transaction{Version: 1}
	spend.AddInput(block.NewInput(op, spendScript))
	spend.AddOutput(block.TxOutput{Value: 4900, LockingScript: []byte("payee")})

	cb := coinbaseTx(block.Subsidy(1)+100, 1)
	b := buildBlock(t, 1, []block.Transaction{cb, spend}, trivialBits)

	result, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(100), result.TotalFees)
	assert.Len(t, result.TxUndoLogs, 2)
}

func TestValidateRejectsMissingCoinbase(t *testing.T) {
	set := utxo.New()
	tx := block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(block.OutPoint{TxHash: block.Hash256{1}, Index: 0}, nil))
	tx.AddOutput(block.TxOutput{Value: 1000, LockingScript: []byte("x")})
	b := buildBlock(t, 1, []block.Transaction{tx}, trivialBits)
	b.Header.DifficultyTarget = trivialBits

	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindCoinbaseInvalid, verr.Kind())
}

func TestValidateRejectsBlockExceedingMaxWeight(t *testing.T) {
	set := utxo.New()
	txs := []block.Transaction{coinbaseTx(block.Subsidy(1), 1)}
	// Fourteen ~95KB inputs push the base (legacy) size past 1.3MB. Weight
	// (base*3+total) then clears MaxBlockWeight while the plain serialized
	// size stays well under MaxBlockSize, isolating the weight check.
	for i := 0; i < 14; i++ {
		tx := block.Transaction{Version: 1}
		tx.AddInput(block.NewInput(block.OutPoint{TxHash: block.Hash256{byte(i)}, Index: 0}, make([]byte, 95000)))
		tx.AddOutput(block.TxOutput{Value: 1000})
		txs = append(txs, tx)
	}
	b := buildBlock(t, 1, txs, trivialBits)

	size, err := b.SerializedSize()
	require.NoError(t, err)
	require.Less(t, size, block.MaxBlockSize, "test setup must stay under the plain size cap to isolate the weight check")

	_, err = validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindOversized, verr.Kind())
}

func TestValidateRejectsMerkleMismatch(t *testing.T) {
	set := utxo.New()
	cb := coinbaseTx(block.Subsidy(1), 1)
	b := buildBlock(t, 1, []block.Transaction{cb}, trivialBits)
	b.Header.MerkleRoot[0] ^= 0xff

	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindMerkleMismatch, verr.Kind())
}

func TestValidateRejectsFutureTimestamp(t *testing.T) {
	set := utxo.New()
	cb := coinbaseTx(block.Subsidy(1), 1)
	b := buildBlock(t, 1, []block.Transaction{cb}, trivialBits)
	b.Header.Timestamp = 1700010000
	sealBlock(t, b)

	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700000000, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindTimestampInvalid, verr.Kind())
}

func TestValidateRejectsTimestampNotAfterMedian(t *testing.T) {
	set := utxo.New()
	cb := coinbaseTx(block.Subsidy(1), 1)
	b := buildBlock(t, 1, []block.Transaction{cb}, trivialBits)
	b.Header.Timestamp = 1700000000

	prev := []uint32{1699999000, 1699999500, 1700000000, 1700000500, 1700001000}
	_, err := validate.Validate(b, prev, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindTimestampInvalid, verr.Kind())
}

func TestValidateRejectsWrongDifficultyTarget(t *testing.T) {
	set := utxo.New()
	cb := coinbaseTx(block.Subsidy(1), 1)
	b := buildBlock(t, 1, []block.Transaction{cb}, trivialBits)

	_, err := validate.Validate(b, nil, 0x1c00ffff, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindDifficultyInvalid, verr.Kind())
}

func TestValidateRejectsDustOutput(t *testing.T) {
	set := utxo.New()
	spendScript := []byte("owner")
	op := fundedOutpoint(t, set, 5000, spendScript, 0, false)

	spend := block.Transaction{Version: 1}
	spend.AddInput(block.NewInput(op, spendScript))
	spend.AddOutput(block.TxOutput{Value: 100, LockingScript: []byte("payee")})

	cb := coinbaseTx(block.Subsidy(1), 1)
	b := buildBlock(t, 1, []block.Transaction{cb, spend}, trivialBits)

	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindDustOutput, verr.Kind())
}

func TestValidateRejectsDoubleSpendWithinTransaction(t *testing.T) {
	set := utxo.New()
	spendScript := []byte("owner")
	op := fundedOutpoint(t, set, 5000, spendScript, 0, false)

	spend := block.Transaction{Version: 1}
	spend.AddInput(block.NewInput(op, spendScript))
	spend.AddInput(block.NewInput(op, spendScript))
	spend.AddOutput(block.TxOutput{Value: 1000, LockingScript: []byte("payee")})

	cb := coinbaseTx(block.Subsidy(1), 1)
	b := buildBlock(t, 1, []block.Transaction{cb, spend}, trivialBits)

	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindDoubleSpend, verr.Kind())
}

func TestValidateRejectsImmatureCoinbaseSpend(t *testing.T) {
	set := utxo.New()
	spendScript := []byte("owner")
	op := fundedOutpoint(t, set, 5000, spendScript, 1, true)

	spend := block.Transaction{Version: 1}
	spend.AddInput(block.NewInput(op, spendScript))
	spend.AddOutput(block.TxOutput{Value: 4900, LockingScript: []byte("payee")})

	cb := coinbaseTx(block.Subsidy(50), 50)
	b := buildBlock(t, 50, []block.Transaction{cb, spend}, trivialBits)

	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindMaturityUnmet, verr.Kind())
}

func TestValidateRejectsScriptVerificationFailure(t *testing.T) {
	set := utxo.New()
	op := fundedOutpoint(t, set, 5000, []byte("owner"), 0, false)

	spend := block.Transaction{Version: 1}
	spend.AddInput(block.NewInput(op, []byte("wrong-key")))
	spend.AddOutput(block.TxOutput{Value: 4900, LockingScript: []byte("payee")})

	cb := coinbaseTx(block.Subsidy(1), 1)
	b := buildBlock(t, 1, []block.Transaction{cb, spend}, trivialBits)

	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindScriptVerifyFailed, verr.Kind())
}

func TestValidateRejectsCoinbaseExceedingSubsidyPlusFees(t *testing.T) {
	set := utxo.New()
	cb := coinbaseTx(block.Subsidy(1)+1, 1)
	b := buildBlock(t, 1, []block.Transaction{cb}, trivialBits)

	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindRewardExceeded, verr.Kind())
}

func TestValidateLeavesSnapshotUntouchedOnFailure(t *testing.T) {
	set := utxo.New()
	op := fundedOutpoint(t, set, 5000, []byte("owner"), 0, false)

	spend := block.Transaction{Version: 1}
	spend.AddInput(block.NewInput(op, []byte("owner")))
	spend.AddOutput(block.TxOutput{Value: 4900, LockingScript: []byte("payee")})

	cb := coinbaseTx(block.Subsidy(1)+1, 1) // over-mint, fails at the coinbase check
	b := buildBlock(t, 1, []block.Transaction{cb, spend}, trivialBits)

	before := set.Len()
	_, err := validate.Validate(b, nil, trivialBits, set, script.Evaluate, time.Unix(1700003600, 0))
	require.Error(t, err)
	assert.Equal(t, before, set.Len())
	assert.True(t, set.Has(op), "spent input should be restored after rollback")
}
