// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package block_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

func sampleTx() *block.Transaction {
	tx := &block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(block.OutPoint{TxHash: block.Hash256{1, 2, 3}, Index: 0}, []byte("unlock")))
	tx.AddOutput(block.TxOutput{Value: 5000, LockingScript: []byte("lock")})
	return tx
}

func TestTransactionRoundTripLegacy(t *testing.T) {
	tx := sampleTx()

	txid, err := tx.TxID()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, block.MarshalTransaction(&buf, tx))

	decoded, err := block.UnmarshalTransaction(&buf)
	require.NoError(t, err)

	decodedID, err := decoded.TxID()
	require.NoError(t, err)
	assert.Equal(t, txid, decodedID)
	assert.Equal(t, tx.Outputs, decoded.Outputs)
}

func TestTransactionRoundTripWitness(t *testing.T) {
	tx := sampleTx()
	tx.Witnesses = []block.TxWitness{{[]byte("sig"), []byte("pubkey")}}
	tx.Touch()

	wtxid, err := tx.WTxID()
	require.NoError(t, err)
	require.True(t, tx.HasWitness())

	var buf bytes.Buffer
	require.NoError(t, block.MarshalTransaction(&buf, tx))

	decoded, err := block.UnmarshalTransaction(&buf)
	require.NoError(t, err)

	decodedWTxID, err := decoded.WTxID()
	require.NoError(t, err)
	assert.Equal(t, wtxid, decodedWTxID)
	assert.Equal(t, tx.Witnesses, decoded.Witnesses)
}

func TestCoinbaseTransactionRoundTripWithoutWitness(t *testing.T) {
	tx := &block.Transaction{Version: 1}
	tx.AddInput(block.NewInput(block.NullOutPoint(), []byte("genesis message")))
	tx.AddOutput(block.TxOutput{Value: 5000000000, LockingScript: []byte("lock")})

	txid, err := tx.TxID()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, block.MarshalTransaction(&buf, tx))

	decoded, err := block.UnmarshalTransaction(&buf)
	require.NoError(t, err)

	decodedID, err := decoded.TxID()
	require.NoError(t, err)
	assert.Equal(t, txid, decodedID)
	assert.Equal(t, tx.Outputs, decoded.Outputs)
	assert.False(t, decoded.HasWitness())
}

func TestUnmarshalTransactionRejectsBadMarkerFlag(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, block.WriteUint32LE(&buf, 1))
	buf.Write([]byte{0x01, 0x01}) // wrong marker byte

	_, err := block.UnmarshalTransaction(&buf)
	require.Error(t, err)

	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindMalformed, verr.Kind())
}

func TestHeaderRoundTrip(t *testing.T) {
	h := &block.BlockHeader{
		Version:          1,
		PrevBlockHash:    block.Hash256{9, 9, 9},
		MerkleRoot:       block.Hash256{7, 7, 7},
		Timestamp:        1700000000,
		DifficultyTarget: block.GenesisDifficultyTarget,
		Nonce:            42,
		Height:           100, // not part of the wire form
	}

	var buf bytes.Buffer
	require.NoError(t, block.MarshalHeader(&buf, h))
	assert.Equal(t, block.HeaderSize, buf.Len())

	decoded, err := block.UnmarshalHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h.Version, decoded.Version)
	assert.Equal(t, h.PrevBlockHash, decoded.PrevBlockHash)
	assert.Equal(t, h.MerkleRoot, decoded.MerkleRoot)
	assert.Equal(t, h.Timestamp, decoded.Timestamp)
	assert.Equal(t, h.DifficultyTarget, decoded.DifficultyTarget)
	assert.Equal(t, h.Nonce, decoded.Nonce)
	assert.Zero(t, decoded.Height)
}

func TestBlockWeightIsBaseTimesThreePlusTotal(t *testing.T) {
	tx := sampleTx()
	txid, err := tx.TxID()
	require.NoError(t, err)

	b := &block.Block{
		Header:       block.BlockHeader{MerkleRoot: block.MerkleRoot([]block.Hash256{txid})},
		Transactions: []block.Transaction{*tx},
	}

	base, err := b.BaseSize()
	require.NoError(t, err)
	total, err := b.SerializedSize()
	require.NoError(t, err)
	// sampleTx carries no witness, so the witness-carrying encoding is only
	// the marker/flag pair and the (empty) witness stacks longer than the
	// legacy one, and weight is still base*3+total, not a bare size check.
	assert.Greater(t, total, base)

	weight, err := b.Weight()
	require.NoError(t, err)
	assert.Equal(t, base*3+total, weight)
}

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 252, 253, 65535, 65536, 1 << 40}
	for _, v := range cases {
		var buf bytes.Buffer
		require.NoError(t, block.WriteVarInt(&buf, v))
		got, err := block.ReadVarInt(&buf)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}
