// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package stake

import (
	"encoding/binary"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/crypto"
)

// Slot describes one scheduled block-production opportunity.
type Slot struct {
	SlotTime          uint64
	ExpectedHeight     uint32
	AssignedValidator *block.Hash256 // nil means PoW
}

// weight computes selection weight for v at slotTime, per §4.6.
func weight(v *Validator, totalStake uint64, slotTime uint64) float64 {
	if totalStake == 0 {
		return 0
	}
	stakeWeight := float64(v.StakeAmount) / float64(totalStake)
	reputationFactor := 0.5 + float64(v.Reputation)/100
	timeFactor := 1 + float64(slotTime-v.LastBlockTime)/3600
	if timeFactor > 2 {
		timeFactor = 2
	}
	activityFactor := 1 - float64(v.MissedSlots)*0.1
	if activityFactor < 0.1 {
		activityFactor = 0.1
	}
	return stakeWeight * reputationFactor * timeFactor * activityFactor
}

// SelectValidator deterministically picks a validator for slotTime given
// previousBlockHash, or returns (zero, false) when the slot should fall
// back to PoW (no eligible validators, or zero total weight).
func (r *Registry) SelectValidator(slotTime uint64, previousBlockHash block.Hash256, currentHeight uint32) (block.Hash256, bool) {
	eligible := r.eligibleSorted(slotTime, currentHeight)
	if len(eligible) == 0 {
		return block.Hash256{}, false
	}

	total := r.TotalStake()
	weights := make([]float64, len(eligible))
	var sumWeights float64
	for i, v := range eligible {
		w := weight(v, total, slotTime)
		weights[i] = w
		sumWeights += w
	}
	if sumWeights <= 0 {
		return block.Hash256{}, false
	}

	var timeBuf [8]byte
	binary.LittleEndian.PutUint64(timeBuf[:], slotTime)
	seedInput := append(append([]byte{}, timeBuf[:]...), previousBlockHash[:]...)
	seed := block.DoubleSHA256(seedInput)

	prng := crypto.NewDeterministicPRNG(seed)
	pick := prng.Rand().Float64() * sumWeights

	var running float64
	for i, v := range eligible {
		running += weights[i]
		if running >= pick {
			return v.ID, true
		}
	}
	// Floating-point rounding may leave `pick` a hair above the summed
	// weights; the last eligible validator wins in that case.
	return eligible[len(eligible)-1].ID, true
}

// activeValidatorCount returns the number of currently active validators.
func (r *Registry) activeValidatorCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int
	for _, v := range r.validators {
		if v.Active {
			n++
		}
	}
	return n
}

// GenerateUpcomingSlots produces n future slots starting at fromTime,
// alternating PoW/PoS by position once expectedHeight reaches
// posActivationHeight, and pre-resolving each PoS slot's assigned
// validator against bestBlockHash.
func (r *Registry) GenerateUpcomingSlots(fromTime uint64, fromHeight, n uint32, posActivationHeight uint32, bestBlockHash block.Hash256) []Slot {
	adjustmentFactor := 1 - float64(r.activeValidatorCount())*0.02
	if adjustmentFactor < 0.5 {
		adjustmentFactor = 0.5
	}
	interval := uint64(600 * adjustmentFactor)
	if interval < 60 {
		interval = 60
	}

	slots := make([]Slot, 0, n)
	slotTime := fromTime
	for i := uint32(0); i < n; i++ {
		height := fromHeight + i
		s := Slot{SlotTime: slotTime, ExpectedHeight: height}

		isPoSPosition := height >= posActivationHeight && i%2 == 1
		if isPoSPosition {
			if id, ok := r.SelectValidator(slotTime, bestBlockHash, height); ok {
				s.AssignedValidator = &id
			}
		}
		slots = append(slots, s)
		slotTime += interval
	}
	return slots
}
