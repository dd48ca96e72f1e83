// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package chain

import (
	"math/big"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
	"github.com/hybridledger/consensus-core/pkg/core/validate"
)

// resolveFork implements the fork resolver (C8): trace back to the common
// ancestor, compare cumulative work, and reorganize onto the heavier
// branch when it strictly exceeds the current one. Adapted from the
// teacher's tryFallback/revertBlockchain reorg procedure.
func (e *Engine) resolveFork(b *block.Block) error {
	llog := logger.WithFields(log.Fields{"candidate_height": b.Header.Height})

	// PutBlock also indexes b by height; restore the main-chain block at
	// that height so isOnMainChain and mainChainSince still see it.
	mainAtHeight, mainErr := e.store.GetBlockByHeight(b.Header.Height)
	if err := e.store.PutBlock(b); err != nil {
		return err
	}
	if mainErr == nil {
		if err := e.store.PutBlock(mainAtHeight); err != nil {
			return err
		}
	}

	altChain, forkPoint, err := e.traceToForkPoint(b)
	if err != nil {
		llog.WithError(err).Debug("could not trace candidate block to a known ancestor")
		return err
	}

	altWork, err := e.chainWork(altChain)
	if err != nil {
		return err
	}

	tipHash, tipHeight := e.state.Tip()
	mainChain, err := e.mainChainSince(forkPoint, tipHeight)
	if err != nil {
		return err
	}
	mainWork, err := e.chainWork(mainChain)
	if err != nil {
		return err
	}

	if altWork.Cmp(mainWork) <= 0 {
		llog.WithFields(log.Fields{"alt_work": altWork.String(), "main_work": mainWork.String()}).Debug("alternative branch does not exceed main chain work, keeping tip")
		return nil
	}

	llog.WithFields(log.Fields{
		"fork_point": forkPoint.String(),
		"old_tip":    tipHash.String(),
		"alt_work":   altWork.String(),
		"main_work":  mainWork.String(),
	}).Info("reorganizing to heavier branch")

	return e.reorganize(mainChain, altChain)
}

// traceToForkPoint walks parent links from b back to an ancestor already
// known to the main chain, returning the alternative chain in ascending
// order (oldest first, ending in b) and the fork-point hash.
func (e *Engine) traceToForkPoint(b *block.Block) ([]*block.Block, block.Hash256, error) {
	chain := []*block.Block{b}
	current := b
	for {
		parentHash := current.Header.PrevBlockHash
		if !e.store.HasBlock(parentHash) {
			return nil, block.Hash256{}, block.NewValidationError(block.KindMalformed, "fork chain does not connect to known history")
		}
		parent, err := e.store.GetBlockByHash(parentHash)
		if err != nil {
			return nil, block.Hash256{}, err
		}

		if e.isOnMainChain(parentHash, parent.Header.Height) {
			reversed := make([]*block.Block, len(chain))
			for i, blk := range chain {
				reversed[len(chain)-1-i] = blk
			}
			return reversed, parentHash, nil
		}

		chain = append(chain, parent)
		current = parent
	}
}

func (e *Engine) isOnMainChain(hash block.Hash256, height uint32) bool {
	mainAtHeight, err := e.store.GetBlockByHeight(height)
	if err != nil {
		return false
	}
	mainHash, err := mainAtHeight.Hash()
	if err != nil {
		return false
	}
	return mainHash == hash
}

// mainChainSince returns every main-chain block strictly above forkPoint's
// height, up to and including tipHeight, oldest first.
func (e *Engine) mainChainSince(forkPoint block.Hash256, tipHeight uint32) ([]*block.Block, error) {
	forkBlock, err := e.store.GetBlockByHash(forkPoint)
	if err != nil {
		return nil, err
	}
	var chain []*block.Block
	for h := forkBlock.Header.Height + 1; h <= tipHeight; h++ {
		b, err := e.store.GetBlockByHeight(h)
		if err != nil {
			return nil, err
		}
		chain = append(chain, b)
	}
	return chain, nil
}

// chainWork sums the proof-of-work of every block in chain, plus, for PoS
// blocks, a stake-proportional weight term, per §4.8 step 2.
func (e *Engine) chainWork(chain []*block.Block) (*big.Int, error) {
	total := new(big.Int)
	for _, b := range chain {
		target, err := block.CompactToTarget(b.Header.DifficultyTarget)
		if err != nil {
			return nil, err
		}
		blockWork := block.CalculateWork(target)
		total.Add(total, blockWork)

		hash, err := b.Hash()
		if err != nil {
			return nil, err
		}
		e.undoMu.Lock()
		producer := e.producers[hash]
		e.undoMu.Unlock()
		if producer != nil {
			v, _, ok := e.stakes.Get(*producer)
			if ok && e.stakes.TotalStake() > 0 {
				stakeWeight := new(big.Int).Mul(blockWork, new(big.Int).SetUint64(v.StakeAmount))
				stakeWeight.Div(stakeWeight, new(big.Int).SetUint64(e.stakes.TotalStake()))
				total.Add(total, stakeWeight)
			}
		}
	}
	return total, nil
}

// reorganize rolls back mainChain (reverse order) and reapplies altChain
// (forward order), revalidating each block. The pre-rollback UTXO set is
// held aside so any failure along the way can abort by restoring it
// wholesale, leaving the original main chain's effect byte-identical.
func (e *Engine) reorganize(mainChain, altChain []*block.Block) error {
	preReorgSet := e.utxoSet.Snapshot()
	preReorgState := e.state.snapshot()

	disconnectedWork := new(big.Int)
	for i := len(mainChain) - 1; i >= 0; i-- {
		b := mainChain[i]
		hash, err := b.Hash()
		if err != nil {
			return e.abortReorg(preReorgSet, preReorgState)
		}
		e.undoMu.Lock()
		undo := e.undoLogs[hash]
		e.undoMu.Unlock()
		for j := len(undo) - 1; j >= 0; j-- {
			if err := e.utxoSet.RollbackTransaction(undo[j]); err != nil {
				return e.abortReorg(preReorgSet, preReorgState)
			}
		}
		target, err := block.CompactToTarget(b.Header.DifficultyTarget)
		if err != nil {
			return e.abortReorg(preReorgSet, preReorgState)
		}
		disconnectedWork.Add(disconnectedWork, block.CalculateWork(target))
	}
	// mainChain's work was already folded into cumulativeWork when each of
	// its blocks was originally committed; undo that now so commit() below
	// only adds altChain's work on top of the fork point, per §4.8 step 2.
	e.state.rewindWork(disconnectedWork)

	for _, b := range altChain {
		expectedBits, err := e.expectedDifficultyFor(b.Header.Height)
		if err != nil {
			return e.abortReorg(preReorgSet, preReorgState)
		}
		snapshot := e.utxoSet.Snapshot()
		result, err := validate.Validate(b, e.snapshotRecentTimestamps(), expectedBits, snapshot, e.verifier, time.Now())
		if err != nil {
			return e.abortReorg(preReorgSet, preReorgState)
		}
		e.utxoSet = snapshot

		hash, err := b.Hash()
		if err != nil {
			return e.abortReorg(preReorgSet, preReorgState)
		}
		var producerPtr *block.Hash256
		if id, _, ok := coinbaseValidatorWitness(b); ok {
			producerPtr = &id
		}
		e.commit(b, hash, result.TxUndoLogs, producerPtr)
	}
	return nil
}

// abortReorg discards whatever partial rollback/reapplication has happened
// and restores the UTXO set and chain state exactly as they stood before
// reorganize began.
func (e *Engine) abortReorg(preReorgSet *utxo.Set, preReorgState stateSnapshot) error {
	e.utxoSet = preReorgSet
	e.state.restore(preReorgState)
	return block.NewValidationError(block.KindMalformed, "reorganization aborted, main chain restored")
}
