// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package chain implements the consensus engine (C7): the state machine
// that classifies, validates, applies and commits arriving blocks, and the
// fork resolver (C8) that reorganizes the chain when a heavier branch
// arrives. It is grounded on the teacher's pkg/core/chain package (its
// ledger contract and its fallback/reorg procedure), generalized from
// SBFT block gossip to this core's PoW/PoS ingestion model.
package chain

import (
	"math/big"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/difficulty"
	"github.com/hybridledger/consensus-core/pkg/core/pow"
	"github.com/hybridledger/consensus-core/pkg/core/script"
	"github.com/hybridledger/consensus-core/pkg/core/stake"
	"github.com/hybridledger/consensus-core/pkg/core/utxo"
	"github.com/hybridledger/consensus-core/pkg/core/validate"
	"github.com/hybridledger/consensus-core/pkg/crypto"
	"github.com/hybridledger/consensus-core/pkg/store"
)

var logger = log.WithField("prefix", "chain")

// posRewardNumerator/posRewardDenominator express the 80% PoS reward share
// of §4.7's block reward formula.
const (
	posRewardNumerator   = 8
	posRewardDenominator = 10
)

// Engine ties the block/UTXO model, the validator, the difficulty
// controller, the stake registry and the storage collaborator into one
// consensus core. Block ingestion is serialized: at most one AcceptBlock
// call is in flight at a time, per §5.
type Engine struct {
	ingestMu sync.Mutex

	store    store.BlockchainStore
	utxoSet  *utxo.Set
	state    *State
	stakes   *stake.Registry
	verifier script.Verifier
	crypto   *crypto.Context
	miner    *pow.Miner

	recentMu         sync.Mutex
	recentTimestamps []uint32

	undoMu    sync.Mutex
	undoLogs  map[block.Hash256][]*utxo.TxUndoLog
	producers map[block.Hash256]*block.Hash256 // block hash -> producing validator, nil for PoW
}

// Config bundles the engine configuration recognized per §6.5.
type Config struct {
	MinStakeAmount      uint64
	StakeMaturityBlocks uint32
	PosActivationHeight uint32
	PowTargetRatio      float64
	WorkerCount         int
}

// New builds an Engine anchored at genesis, persisting it to s if not
// already present.
func New(s store.BlockchainStore, genesis *block.Block, cfg Config, verifier script.Verifier) (*Engine, error) {
	hash, err := genesis.Hash()
	if err != nil {
		return nil, err
	}
	if !s.HasBlock(hash) {
		if err := s.PutBlock(genesis); err != nil {
			return nil, err
		}
		if err := s.PutBestBlockHash(hash); err != nil {
			return nil, err
		}
	}

	utxoSet := utxo.New()
	coinbase := genesis.Coinbase()
	txid, err := coinbase.TxID()
	if err != nil {
		return nil, err
	}
	op := block.OutPoint{TxHash: txid, Index: 0}
	if err := utxoSet.Add(op, utxo.Entry{Output: coinbase.Outputs[0], Height: 0, IsCoinbase: true}); err != nil {
		return nil, err
	}

	e := &Engine{
		store:            s,
		utxoSet:          utxoSet,
		state:            NewState(hash, genesis.Header.DifficultyTarget, cfg.MinStakeAmount, cfg.StakeMaturityBlocks, cfg.PosActivationHeight, cfg.PowTargetRatio),
		stakes:           stake.NewRegistry(cfg.MinStakeAmount, cfg.StakeMaturityBlocks),
		verifier:         verifier,
		crypto:           crypto.Default(),
		miner:            pow.New(),
		recentTimestamps: []uint32{genesis.Header.Timestamp},
		undoLogs:         make(map[block.Hash256][]*utxo.TxUndoLog),
		producers:        make(map[block.Hash256]*block.Hash256),
	}
	e.producers[hash] = nil
	return e, nil
}

// Stakes exposes the validator/stake registry for lifecycle operations.
func (e *Engine) Stakes() *stake.Registry { return e.stakes }

// Tip returns the current best block hash and height.
func (e *Engine) Tip() (block.Hash256, uint32) { return e.state.Tip() }

// CumulativeWork returns the accumulated proof-of-work of the best chain.
func (e *Engine) CumulativeWork() *big.Int { return e.state.CumulativeWork() }

func (e *Engine) pushRecentTimestamp(ts uint32) {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	e.recentTimestamps = append(e.recentTimestamps, ts)
	if len(e.recentTimestamps) > 11 {
		e.recentTimestamps = e.recentTimestamps[len(e.recentTimestamps)-11:]
	}
}

func (e *Engine) snapshotRecentTimestamps() []uint32 {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	out := make([]uint32, len(e.recentTimestamps))
	copy(out, e.recentTimestamps)
	return out
}

// coinbaseValidatorWitness returns the producing validator id and signature
// carried by a PoS block's coinbase, and whether the block claims to be
// PoS at all. The block-format field carrying this is the coinbase's first
// witness stack: item 0 is the 32-byte validator id, item 1 the 64-byte
// signature over the header hash.
func coinbaseValidatorWitness(b *block.Block) (block.Hash256, [crypto.SignatureSize]byte, bool) {
	var id block.Hash256
	var sig [crypto.SignatureSize]byte

	coinbase := b.Coinbase()
	if coinbase == nil || len(coinbase.Witnesses) == 0 {
		return id, sig, false
	}
	wit := coinbase.Witnesses[0]
	if len(wit) != 2 || len(wit[0]) != block.HashSize || len(wit[1]) != crypto.SignatureSize {
		return id, sig, false
	}
	copy(id[:], wit[0])
	copy(sig[:], wit[1])
	return id, sig, true
}

// expectedDifficultyFor computes the compact target expected at height,
// consulting the store for the interval's boundary timestamps when height
// starts a new retarget window.
func (e *Engine) expectedDifficultyFor(height uint32) (uint32, error) {
	prevBits := e.state.CurrentDifficulty()
	if height == 0 || height%block.DifficultyAdjustmentInterval != 0 {
		return prevBits, nil
	}

	last, err := e.store.GetBlockByHeight(height - 1)
	if err != nil {
		return 0, err
	}
	first, err := e.store.GetBlockByHeight(height - block.DifficultyAdjustmentInterval)
	if err != nil {
		return 0, err
	}

	e.state.mu.RLock()
	powRatio := e.state.powRatioLocked()
	targetRatio := e.state.powTargetRatio
	e.state.mu.RUnlock()

	return difficulty.ExpectedBits(height, prevBits, first.Header.Timestamp, last.Header.Timestamp, powRatio, targetRatio)
}

// AcceptBlock classifies b, validates it, and applies it to the chain
// (§4.7 steps 1-6), or routes it to fork resolution when it does not
// extend the current tip (§4.8).
func (e *Engine) AcceptBlock(b *block.Block) error {
	e.ingestMu.Lock()
	defer e.ingestMu.Unlock()

	hash, err := b.Hash()
	if err != nil {
		return err
	}

	tipHash, _ := e.state.Tip()
	if b.Header.PrevBlockHash != tipHash {
		return e.resolveFork(b)
	}

	undo, producer, err := e.validateAgainstTip(b)
	if err != nil {
		logger.WithFields(log.Fields{"height": b.Header.Height, "reason": err.Error()}).Warn("block rejected")
		return err
	}
	e.commit(b, hash, undo, producer)
	return nil
}

// validateAgainstTip runs full validation (structure, PoW/PoS, script,
// UTXO application) for b, which is presumed to extend the current tip.
// On success it returns the block's undo logs and, for PoS blocks, the
// producing validator's id.
func (e *Engine) validateAgainstTip(b *block.Block) ([]*utxo.TxUndoLog, *block.Hash256, error) {
	expectedBits, err := e.expectedDifficultyFor(b.Header.Height)
	if err != nil {
		return nil, nil, err
	}

	snapshot := e.utxoSet.Snapshot()
	result, err := validate.Validate(b, e.snapshotRecentTimestamps(), expectedBits, snapshot, e.verifier, time.Now())
	if err != nil {
		return nil, nil, err
	}

	validatorID, sig, isPoS := coinbaseValidatorWitness(b)
	var producer *block.Hash256
	if isPoS {
		v, _, ok := e.stakes.Get(validatorID)
		if !ok {
			return nil, nil, block.NewValidationError(block.KindPosValidatorUnknown, "pos validator unknown")
		}
		headerHash, err := b.Hash()
		if err != nil {
			return nil, nil, err
		}
		var pk crypto.PublicKey
		copy(pk[:], v.PublicKey)
		if !e.crypto.Verify(headerHash, sig, pk) {
			return nil, nil, block.NewValidationError(block.KindPosSignatureInvalid, "pos signature invalid")
		}
		_, tipHeight := e.state.Tip()
		selected, ok := e.stakes.SelectValidator(uint64(b.Header.Timestamp), b.Header.PrevBlockHash, tipHeight)
		if !ok || selected != validatorID {
			return nil, nil, block.NewValidationError(block.KindPosValidatorIneligible, "pos validator not selected for slot")
		}
		producer = &validatorID
	}

	e.utxoSet = snapshot
	return result.TxUndoLogs, producer, nil
}

// commit finalizes an already-validated block: records the undo log,
// advances chain state, and runs the always-on validator-state update.
func (e *Engine) commit(b *block.Block, hash block.Hash256, undo []*utxo.TxUndoLog, producer *block.Hash256) {
	e.undoMu.Lock()
	e.undoLogs[hash] = undo
	e.producers[hash] = producer
	e.undoMu.Unlock()

	batch, err := e.store.Begin()
	if err == nil {
		if err = batch.PutBlock(b); err == nil {
			if err = batch.PutBestBlockHash(hash); err == nil {
				err = batch.Commit()
			}
		}
		if err != nil {
			_ = batch.Rollback()
		}
	}
	if err != nil {
		logger.WithError(err).Error("failed to persist accepted block")
	}

	e.state.mu.Lock()
	e.state.commitLocked(hash, b.Header.Height, b.Header.DifficultyTarget, producer == nil)
	if b.Header.Height%block.DifficultyAdjustmentInterval == 0 {
		e.state.resetWindowLocked()
	}
	e.state.mu.Unlock()

	e.pushRecentTimestamp(b.Header.Timestamp)
	e.stakes.UpdateStakeMaturity(b.Header.Height)
	if producer != nil {
		if err := e.stakes.MarkProduced(*producer, uint64(b.Header.Timestamp)); err != nil {
			logger.WithError(err).Warn("failed to record block producer")
		}
	}

	logger.WithFields(log.Fields{"height": b.Header.Height, "hash": hash.String()}).Debug("block committed")
}

// BlockReward computes the coinbase reward due at height, applying the PoS
// discount of §4.7 when isPoW is false.
func BlockReward(height uint32, isPoW bool) uint64 {
	base := block.Subsidy(height)
	if isPoW {
		return base
	}
	return base * posRewardNumerator / posRewardDenominator
}

// MinePoW delegates to the PoW miner over headerTemplate.
func (e *Engine) MinePoW(headerTemplate block.BlockHeader, maxIterations uint64, workerCount int) (pow.Result, error) {
	target, err := block.CompactToTarget(headerTemplate.DifficultyTarget)
	if err != nil {
		return pow.Result{}, err
	}
	return e.miner.Mine(headerTemplate, target, maxIterations, workerCount)
}

// StopMining requests the engine's in-flight PoW search to halt.
func (e *Engine) StopMining() { e.miner.StopMining() }

// ProducePoS signs headerTemplate's hash with the validator's private key
// on behalf of validatorID, embedding the signature in the coinbase
// witness slot AcceptBlock later inspects. It refuses to sign unless the
// validator is eligible and was indeed selected for this slot.
func (e *Engine) ProducePoS(validatorID block.Hash256, sk *crypto.PrivateKey, template *block.Block) error {
	tipHash, tipHeight := e.state.Tip()
	selected, ok := e.stakes.SelectValidator(uint64(template.Header.Timestamp), tipHash, tipHeight)
	if !ok || selected != validatorID {
		return block.NewValidationError(block.KindPosValidatorIneligible, "validator not selected for this slot")
	}

	headerHash, err := template.Hash()
	if err != nil {
		return err
	}
	sig, err := e.crypto.Sign(headerHash, sk)
	if err != nil {
		return err
	}

	coinbase := template.Coinbase()
	idCopy := validatorID
	coinbase.Witnesses = []block.TxWitness{{append([]byte{}, idCopy[:]...), append([]byte{}, sig[:]...)}}
	coinbase.Touch()
	return nil
}
