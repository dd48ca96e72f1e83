// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package utxo implements the unspent-transaction-output set: the
// authoritative ledger state mutated by block application and rollback.
package utxo

import (
	"sync"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

// Entry records one unspent output together with the metadata needed to
// enforce coinbase maturity.
type Entry struct {
	Output      block.TxOutput
	Height      uint32
	IsCoinbase  bool
}

// UndoRecord pairs a consumed outpoint with the entry it held before being
// spent, letting rollback_transaction and reorganization restore it exactly.
type UndoRecord struct {
	OutPoint block.OutPoint
	Prior    Entry
}

// TxUndoLog is the ordered list of undo records produced by applying a
// single transaction: one per spent input, in input order.
type TxUndoLog struct {
	SpentInputs []UndoRecord
	CreatedOutputs []block.OutPoint
}

// Set is the thread-safe mapping from OutPoint to Entry.
type Set struct {
	mu      sync.RWMutex
	entries map[block.OutPoint]Entry
}

// New builds an empty UTXO set.
func New() *Set {
	return &Set{entries: make(map[block.OutPoint]Entry)}
}

// Add inserts entry at outpoint. It fails if the outpoint already exists.
func (s *Set) Add(outpoint block.OutPoint, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(outpoint, entry)
}

func (s *Set) addLocked(outpoint block.OutPoint, entry Entry) error {
	if _, ok := s.entries[outpoint]; ok {
		return block.NewValidationError(block.KindTxInvalid, "outpoint already exists in utxo set")
	}
	s.entries[outpoint] = entry
	return nil
}

// Remove deletes outpoint. It fails if the outpoint is absent.
func (s *Set) Remove(outpoint block.OutPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(outpoint)
}

func (s *Set) removeLocked(outpoint block.OutPoint) error {
	if _, ok := s.entries[outpoint]; !ok {
		return block.NewValidationError(block.KindTxInvalid, "outpoint not found in utxo set")
	}
	delete(s.entries, outpoint)
	return nil
}

// Get returns the entry at outpoint, and whether it was present.
func (s *Set) Get(outpoint block.OutPoint) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[outpoint]
	return e, ok
}

// Has reports whether outpoint is present.
func (s *Set) Has(outpoint block.OutPoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[outpoint]
	return ok
}

// Len returns the number of entries currently held.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a deep copy of the set, used by the validator to try a
// candidate block's transactions without mutating chain state.
func (s *Set) Snapshot() *Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := make(map[block.OutPoint]Entry, len(s.entries))
	for k, v := range s.entries {
		clone[k] = v
	}
	return &Set{entries: clone}
}

// ApplyTransaction spends tx's inputs and creates its outputs at
// blockHeight, atomically: on any failure the set is left unchanged and a
// typed ValidationError is returned. Coinbase transactions (tx.IsCoinbase())
// skip input processing entirely, per the null-outpoint convention.
//
// The returned TxUndoLog records the entries consumed and the outpoints
// created, letting callers reverse the exact effect of this call.
func (s *Set) ApplyTransaction(tx *block.Transaction, blockHeight uint32) (*TxUndoLog, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	undo := &TxUndoLog{}

	var inputTotal uint64
	if !tx.IsCoinbase() {
		for _, in := range tx.Inputs {
			entry, ok := s.entries[in.Prev]
			if !ok {
				return nil, 0, block.NewValidationError(block.KindUtxoMissing, "spent outpoint not found")
			}
			if entry.IsCoinbase && blockHeight-entry.Height < block.CoinbaseMaturity {
				return nil, 0, block.NewValidationError(block.KindMaturityUnmet, "coinbase output not yet mature")
			}
			next := inputTotal + entry.Output.Value
			if next < inputTotal {
				return nil, 0, block.ErrValueOverflow
			}
			inputTotal = next
			undo.SpentInputs = append(undo.SpentInputs, UndoRecord{OutPoint: in.Prev, Prior: entry})
		}
	}

	outputTotal, err := tx.OutputValue()
	if err != nil {
		return nil, 0, err
	}

	var fee uint64
	if !tx.IsCoinbase() {
		if outputTotal > inputTotal {
			return nil, 0, block.NewValidationError(block.KindOutputOverspend, "outputs exceed inputs")
		}
		fee = inputTotal - outputTotal
	}

	// Commit: remove spent inputs, then create new outputs. Either step
	// failing past this point would be a bug (already validated above),
	// but revert defensively if it somehow does.
	for _, rec := range undo.SpentInputs {
		if err := s.removeLocked(rec.OutPoint); err != nil {
			s.revertLocked(undo)
			return nil, 0, err
		}
	}

	txid, err := tx.TxID()
	if err != nil {
		s.revertLocked(undo)
		return nil, 0, err
	}
	for i, out := range tx.Outputs {
		op := block.OutPoint{TxHash: txid, Index: uint32(i)}
		entry := Entry{Output: out, Height: blockHeight, IsCoinbase: tx.IsCoinbase()}
		if err := s.addLocked(op, entry); err != nil {
			s.revertLocked(undo)
			return nil, 0, err
		}
		undo.CreatedOutputs = append(undo.CreatedOutputs, op)
	}

	return undo, fee, nil
}

// revertLocked undoes a partially-applied transaction; caller holds s.mu.
func (s *Set) revertLocked(undo *TxUndoLog) {
	for _, op := range undo.CreatedOutputs {
		delete(s.entries, op)
	}
	for _, rec := range undo.SpentInputs {
		s.entries[rec.OutPoint] = rec.Prior
	}
}

// RollbackTransaction reverses a previously applied transaction using its
// undo log: created outputs are removed, spent inputs are reinserted.
func (s *Set) RollbackTransaction(undo *TxUndoLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range undo.CreatedOutputs {
		if err := s.removeLocked(op); err != nil {
			return err
		}
	}
	for _, rec := range undo.SpentInputs {
		if err := s.addLocked(rec.OutPoint, rec.Prior); err != nil {
			return err
		}
	}
	return nil
}
