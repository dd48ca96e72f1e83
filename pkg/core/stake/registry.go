// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package stake implements the validator/stake registry and the
// stake-weighted slot scheduler, grounded on the teacher's sortition and
// provisioner-set machinery but generalized to this core's eligibility and
// weighting rules.
package stake

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

var logger = log.WithField("prefix", "stake")

// MinReputation and MaxReputation bound Validator.Reputation.
const (
	MinReputation uint8 = 0
	MaxReputation uint8 = 100

	deactivateBelowReputation = 10
	reactivateAtReputation    = 50
)

// Validator is a registered block-producing identity.
type Validator struct {
	ID             block.Hash256
	PublicKey      []byte
	StakeAmount    uint64
	LastBlockTime  uint64
	Reputation     uint8
	Active         bool
	BlocksProduced uint32
	MissedSlots    uint32
}

// Entry records a stake's maturity state.
type Entry struct {
	ValidatorID  block.Hash256
	Amount       uint64
	UnlockHeight uint32
	Locked       bool
}

// Mature reports whether the stake can be selected/withdrawn at height.
func (e Entry) Mature(height uint32) bool {
	return height >= e.UnlockHeight && !e.Locked
}

// Registry holds every validator and its stake, along with running totals.
type Registry struct {
	mu               sync.RWMutex
	validators       map[block.Hash256]*Validator
	stakes           map[block.Hash256]*Entry
	totalStake       uint64
	minStakeAmount   uint64
	maturityBlocks   uint32
}

// NewRegistry builds an empty Registry with the given engine configuration.
func NewRegistry(minStakeAmount uint64, maturityBlocks uint32) *Registry {
	return &Registry{
		validators:     make(map[block.Hash256]*Validator),
		stakes:         make(map[block.Hash256]*Entry),
		minStakeAmount: minStakeAmount,
		maturityBlocks: maturityBlocks,
	}
}

// AddValidator registers a new validator with an initial stake, locked
// until currentHeight+maturityBlocks. It rejects stakes below the
// configured minimum.
func (r *Registry) AddValidator(id block.Hash256, pubkey []byte, stakeAmount uint64, currentHeight uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stakeAmount < r.minStakeAmount {
		return block.NewValidationError(block.KindTxInvalid, "stake below minimum")
	}
	if _, exists := r.validators[id]; exists {
		return block.NewValidationError(block.KindTxInvalid, "validator already registered")
	}

	r.validators[id] = &Validator{
		ID:          id,
		PublicKey:   pubkey,
		StakeAmount: stakeAmount,
		Active:      true,
		Reputation:  MaxReputation,
	}
	r.stakes[id] = &Entry{
		ValidatorID:  id,
		Amount:       stakeAmount,
		UnlockHeight: currentHeight + r.maturityBlocks,
		Locked:       true,
	}
	r.totalStake += stakeAmount
	logger.WithFields(log.Fields{"validator": id.String(), "stake": stakeAmount}).Debug("validator added")
	return nil
}

// UpdateStake changes a validator's stake amount, adjusting the running
// total accordingly.
func (r *Registry) UpdateStake(id block.Hash256, newStake uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.validators[id]
	if !ok {
		return block.NewValidationError(block.KindTxInvalid, "unknown validator")
	}
	s := r.stakes[id]

	r.totalStake = r.totalStake - v.StakeAmount + newStake
	v.StakeAmount = newStake
	s.Amount = newStake
	return nil
}

// RemoveValidator unregisters a validator, but only once its stake is
// mature at currentHeight.
func (r *Registry) RemoveValidator(id block.Hash256, currentHeight uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.validators[id]
	if !ok {
		return block.NewValidationError(block.KindTxInvalid, "unknown validator")
	}
	s := r.stakes[id]
	if !s.Mature(currentHeight) {
		return block.NewValidationError(block.KindMaturityUnmet, "validator stake not yet mature")
	}

	r.totalStake -= v.StakeAmount
	delete(r.validators, id)
	delete(r.stakes, id)
	return nil
}

// UpdateStakeMaturity unlocks every stake whose unlock height has been
// reached by currentHeight. Called on every block.
func (r *Registry) UpdateStakeMaturity(currentHeight uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stakes {
		if currentHeight >= s.UnlockHeight {
			s.Locked = false
		}
	}
}

// Penalize reduces a validator's reputation, incrementing its missed-slot
// count, and deactivates it once reputation drops below the deactivation
// threshold.
func (r *Registry) Penalize(id block.Hash256, points uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.validators[id]
	if !ok {
		return block.NewValidationError(block.KindTxInvalid, "unknown validator")
	}
	if uint8(points) > v.Reputation {
		v.Reputation = MinReputation
	} else {
		v.Reputation -= points
	}
	v.MissedSlots++
	if v.Reputation < deactivateBelowReputation {
		v.Active = false
	}
	return nil
}

// Reward increases a validator's reputation, reactivating it once
// reputation reaches the reactivation threshold.
func (r *Registry) Reward(id block.Hash256, points uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.validators[id]
	if !ok {
		return block.NewValidationError(block.KindTxInvalid, "unknown validator")
	}
	next := uint16(v.Reputation) + uint16(points)
	if next > uint16(MaxReputation) {
		next = uint16(MaxReputation)
	}
	v.Reputation = uint8(next)
	if v.Reputation >= reactivateAtReputation {
		v.Active = true
	}
	return nil
}

// Get returns a copy of the validator and stake entry for id.
func (r *Registry) Get(id block.Hash256) (Validator, Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.validators[id]
	if !ok {
		return Validator{}, Entry{}, false
	}
	return *v, *r.stakes[id], true
}

// TotalStake returns the sum of every registered validator's stake.
func (r *Registry) TotalStake() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalStake
}

// MarkProduced records that validator id produced a block at blockTime.
func (r *Registry) MarkProduced(id block.Hash256, blockTime uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.validators[id]
	if !ok {
		return block.NewValidationError(block.KindTxInvalid, "unknown validator")
	}
	v.LastBlockTime = blockTime
	v.BlocksProduced++
	return nil
}

// eligibleSorted returns every validator eligible to produce at slotTime,
// sorted by ID for stable, deterministic accumulation order.
func (r *Registry) eligibleSorted(slotTime uint64, currentHeight uint32) []*Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var eligible []*Validator
	for id, v := range r.validators {
		if !v.Active {
			continue
		}
		s := r.stakes[id]
		if !s.Mature(currentHeight) {
			continue
		}
		if slotTime < v.LastBlockTime+block.MinBlockInterval {
			continue
		}
		cp := *v
		eligible = append(eligible, &cp)
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].ID.Cmp(eligible[j].ID) < 0
	})
	return eligible
}
