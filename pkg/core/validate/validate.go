// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package validate implements the eight-step block validator (C3): the
// single choke point every candidate block must pass before it is
// committed to the chain.
package validate

import (
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/script"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
)

var logger = log.WithField("prefix", "validate")

// Result is a successfully validated block's side effects: the
// per-transaction undo logs needed to commit or roll back, and the total
// fees collected for the coinbase reward check.
type Result struct {
	TxUndoLogs []*utxo.TxUndoLog
	TotalFees  uint64
}

// medianTimestamp returns the median of the given timestamps. The caller
// supplies at most the last 11 block timestamps, per §4.3.
func medianTimestamp(timestamps []uint32) uint32 {
	sorted := make([]uint32, len(timestamps))
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// checkStructure runs step 1: presence and shape of the coinbase, per-tx
// structural checks, and size limits.
func checkStructure(b *block.Block) error {
	if len(b.Transactions) == 0 {
		return block.NewValidationError(block.KindMalformed, "block has no transactions")
	}
	if !b.Transactions[0].IsCoinbase() {
		return block.NewValidationError(block.KindCoinbaseInvalid, "first transaction is not coinbase")
	}
	for i := 1; i < len(b.Transactions); i++ {
		if b.Transactions[i].IsCoinbase() {
			return block.NewValidationError(block.KindCoinbaseInvalid, "duplicate coinbase transaction")
		}
	}
	for i := range b.Transactions {
		tx := &b.Transactions[i]
		if len(tx.Inputs) == 0 || len(tx.Outputs) == 0 {
			return block.NewValidationError(block.KindTxInvalid, "transaction has no inputs or outputs")
		}
		if !tx.IsCoinbase() && tx.HasDuplicateInputs() {
			return block.NewValidationError(block.KindDoubleSpend, "duplicate inputs within transaction")
		}
		size, err := tx.SerializedSize()
		if err != nil {
			return err
		}
		if size > block.MaxTransactionSize {
			return block.NewValidationError(block.KindOversized, "transaction exceeds max size")
		}
		if !tx.IsCoinbase() {
			for _, out := range tx.Outputs {
				if out.Value < block.DustThreshold {
					return block.NewValidationError(block.KindDustOutput, "output below dust threshold")
				}
			}
		}
	}
	size, err := b.SerializedSize()
	if err != nil {
		return err
	}
	if size > block.MaxBlockSize {
		return block.NewValidationError(block.KindOversized, "block exceeds max size")
	}
	weight, err := b.Weight()
	if err != nil {
		return err
	}
	if weight > block.MaxBlockWeight {
		return block.NewValidationError(block.KindOversized, "block exceeds max weight")
	}
	return nil
}

// checkMerkle runs step 2.
func checkMerkle(b *block.Block) error {
	root, err := b.CalculateRoot()
	if err != nil {
		return err
	}
	if root != b.Header.MerkleRoot {
		return block.NewValidationError(block.KindMerkleMismatch, "merkle root does not match recomputation")
	}
	return nil
}

// checkPoW runs step 3.
func checkPoW(b *block.Block) error {
	target, err := block.CompactToTarget(b.Header.DifficultyTarget)
	if err != nil {
		return err
	}
	hash, err := b.Hash()
	if err != nil {
		return err
	}
	if !block.HeaderMeetsTarget(hash, target) {
		return block.NewValidationError(block.KindProofOfWorkInvalid, "header hash does not meet target")
	}
	return nil
}

// checkTimestamp runs step 4. now is injected for testability.
func checkTimestamp(b *block.Block, prevTimestamps []uint32, now time.Time) error {
	if len(prevTimestamps) > 0 {
		if b.Header.Timestamp <= medianTimestamp(prevTimestamps) {
			return block.NewValidationError(block.KindTimestampInvalid, "timestamp not greater than median of last 11 blocks")
		}
	}
	if int64(b.Header.Timestamp) > now.Unix()+block.MaxTimestampDrift {
		return block.NewValidationError(block.KindTimestampInvalid, "timestamp too far in the future")
	}
	return nil
}

// checkDifficulty runs step 5.
func checkDifficulty(b *block.Block, expectedBits uint32) error {
	if b.Header.DifficultyTarget != expectedBits {
		return block.NewValidationError(block.KindDifficultyInvalid, "difficulty target does not match expected value")
	}
	return nil
}

// checkCoinbase runs step 6.
func checkCoinbase(b *block.Block, totalFees uint64) error {
	coinbase := b.Coinbase()
	total, err := coinbase.OutputValue()
	if err != nil {
		return err
	}
	subsidy := block.Subsidy(b.Header.Height)
	if total > subsidy+totalFees {
		return block.NewValidationError(block.KindRewardExceeded, "coinbase output exceeds subsidy plus fees")
	}
	return nil
}

// Validate runs the full eight-step check against a snapshot of the UTXO
// set, per §4.3. It never mutates the caller's live set; the caller is
// responsible for committing snapshot's effects (via TxUndoLogs) if it
// chooses to accept b.
func Validate(b *block.Block, prevTimestamps []uint32, expectedBits uint32, snapshot *utxo.Set, verifier script.Verifier, now time.Time) (*Result, error) {
	if err := checkStructure(b); err != nil {
		return nil, err
	}
	if err := checkMerkle(b); err != nil {
		return nil, err
	}
	if err := checkPoW(b); err != nil {
		return nil, err
	}
	if err := checkTimestamp(b, prevTimestamps, now); err != nil {
		return nil, err
	}
	if err := checkDifficulty(b, expectedBits); err != nil {
		return nil, err
	}

	result := &Result{}
	for i := 1; i < len(b.Transactions); i++ {
		tx := &b.Transactions[i]
		for j, in := range tx.Inputs {
			prevEntry, ok := snapshot.Get(in.Prev)
			if !ok {
				rollbackAll(snapshot, result.TxUndoLogs)
				return nil, block.NewValidationError(block.KindUtxoMissing, "referenced output not found")
			}
			if !verifier.VerifyInput(tx, j, prevEntry.Output) {
				rollbackAll(snapshot, result.TxUndoLogs)
				return nil, block.NewValidationError(block.KindScriptVerifyFailed, "script verification failed")
			}
		}
		undo, fee, err := snapshot.ApplyTransaction(tx, b.Header.Height)
		if err != nil {
			rollbackAll(snapshot, result.TxUndoLogs)
			return nil, err
		}
		result.TxUndoLogs = append(result.TxUndoLogs, undo)
		result.TotalFees += fee
	}

	if err := checkCoinbase(b, result.TotalFees); err != nil {
		rollbackAll(snapshot, result.TxUndoLogs)
		return nil, err
	}

	coinbaseUndo, _, err := snapshot.ApplyTransaction(b.Coinbase(), b.Header.Height)
	if err != nil {
		rollbackAll(snapshot, result.TxUndoLogs)
		return nil, err
	}
	result.TxUndoLogs = append([]*utxo.TxUndoLog{coinbaseUndo}, result.TxUndoLogs...)

	logger.WithFields(log.Fields{"height": b.Header.Height}).Debug("block validated")
	return result, nil
}

func rollbackAll(snapshot *utxo.Set, undoLogs []*utxo.TxUndoLog) {
	for i := len(undoLogs) - 1; i >= 0; i-- {
		_ = snapshot.RollbackTransaction(undoLogs[i])
	}
}
