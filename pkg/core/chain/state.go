// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package chain

import (
	"math/big"
	"sync"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

// State is the mutable consensus state a single Engine guards under one
// readers-writers lock: the tip pointer, the accumulated work, the active
// difficulty and the stake registry's configuration knobs. It is mutated
// exclusively by block ingestion, rollback, validator lifecycle calls, and
// retargeting — never by reads.
type State struct {
	mu sync.RWMutex

	currentHeight    uint32
	bestBlockHash    block.Hash256
	cumulativeWork   *big.Int
	currentDifficulty uint32

	minStakeAmount      uint64
	stakeMaturityBlocks uint32
	posActivationHeight uint32
	powTargetRatio      float64

	powBlocksInWindow int
	posBlocksInWindow int
}

// NewState builds the initial state anchored at the genesis block.
func NewState(genesisHash block.Hash256, genesisDifficulty uint32, minStakeAmount uint64, stakeMaturityBlocks, posActivationHeight uint32, powTargetRatio float64) *State {
	return &State{
		bestBlockHash:       genesisHash,
		cumulativeWork:      block.CalculateWork(mustTarget(genesisDifficulty)),
		currentDifficulty:   genesisDifficulty,
		minStakeAmount:      minStakeAmount,
		stakeMaturityBlocks: stakeMaturityBlocks,
		posActivationHeight: posActivationHeight,
		powTargetRatio:      powTargetRatio,
	}
}

func mustTarget(bits uint32) *big.Int {
	t, err := block.CompactToTarget(bits)
	if err != nil {
		return block.MaxTarget()
	}
	return t
}

// Tip returns the current best block hash and height under a shared lock.
func (s *State) Tip() (block.Hash256, uint32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestBlockHash, s.currentHeight
}

// CumulativeWork returns a copy of the accumulated work total.
func (s *State) CumulativeWork() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.cumulativeWork)
}

// CurrentDifficulty returns the active compact difficulty target.
func (s *State) CurrentDifficulty() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentDifficulty
}

// PowTargetRatio returns the configured PoW/PoS ratio target.
func (s *State) PowTargetRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.powTargetRatio
}

// PosActivationHeight returns the height at which PoS slots begin.
func (s *State) PosActivationHeight() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.posActivationHeight
}

// snapshot captures every mutable field for a later restore, used by the
// fork resolver to undo a reorg that fails partway through.
type stateSnapshot struct {
	currentHeight     uint32
	bestBlockHash     block.Hash256
	cumulativeWork    *big.Int
	currentDifficulty uint32
	powBlocksInWindow int
	posBlocksInWindow int
}

func (s *State) snapshot() stateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return stateSnapshot{
		currentHeight:     s.currentHeight,
		bestBlockHash:     s.bestBlockHash,
		cumulativeWork:    new(big.Int).Set(s.cumulativeWork),
		currentDifficulty: s.currentDifficulty,
		powBlocksInWindow: s.powBlocksInWindow,
		posBlocksInWindow: s.posBlocksInWindow,
	}
}

func (s *State) restore(snap stateSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentHeight = snap.currentHeight
	s.bestBlockHash = snap.bestBlockHash
	s.cumulativeWork = snap.cumulativeWork
	s.currentDifficulty = snap.currentDifficulty
	s.powBlocksInWindow = snap.powBlocksInWindow
	s.posBlocksInWindow = snap.posBlocksInWindow
}

// rewindWork subtracts amount from the accumulated work total, used when a
// reorg disconnects blocks whose work was already added by commitLocked.
func (s *State) rewindWork(amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cumulativeWork.Sub(s.cumulativeWork, amount)
}

// commitLocked advances the tip and accumulates work; caller holds s.mu
// for writing.
func (s *State) commitLocked(hash block.Hash256, height uint32, bits uint32, isPoW bool) {
	s.bestBlockHash = hash
	s.currentHeight = height
	s.cumulativeWork.Add(s.cumulativeWork, block.CalculateWork(mustTarget(bits)))
	s.currentDifficulty = bits
	if isPoW {
		s.powBlocksInWindow++
	} else {
		s.posBlocksInWindow++
	}
}

// powRatioLocked returns the observed PoW fraction over the current
// adjustment window; caller holds s.mu.
func (s *State) powRatioLocked() float64 {
	total := s.powBlocksInWindow + s.posBlocksInWindow
	if total == 0 {
		return 1
	}
	return float64(s.powBlocksInWindow) / float64(total)
}

func (s *State) resetWindowLocked() {
	s.powBlocksInWindow = 0
	s.posBlocksInWindow = 0
}
