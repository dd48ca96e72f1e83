// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package difficulty implements the interval retarget and the hybrid
// PoW/PoS ratio adjustment layered on top of it.
package difficulty

import (
	"math/big"

	log "github.com/sirupsen/logrus"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

var logger = log.WithField("prefix", "difficulty")

// MinDifficultyBits and MaxDifficultyBits bound every compact target this
// controller may ever produce.
var (
	MinDifficultyBits uint32 = 0x1D00FFFF // loosest allowed target
	MaxDifficultyBits uint32 = 0x1000FFFF // tightest allowed target
)

func clampTarget(target, minTarget, maxTarget *big.Int) *big.Int {
	if target.Cmp(minTarget) > 0 {
		return new(big.Int).Set(minTarget)
	}
	if target.Cmp(maxTarget) < 0 {
		return new(big.Int).Set(maxTarget)
	}
	return target
}

// Retarget computes the new compact difficulty target given the previous
// target, the timestamp DIFFICULTY_ADJUSTMENT_INTERVAL blocks ago, and the
// timestamp of the block that closes the interval.
func Retarget(oldBits uint32, firstTimestamp, lastTimestamp uint32) (uint32, error) {
	oldTarget, err := block.CompactToTarget(oldBits)
	if err != nil {
		return 0, err
	}

	const expected = block.DifficultyAdjustmentInterval * block.TargetBlockTime
	actual := int64(lastTimestamp) - int64(firstTimestamp)
	actual = clampInt64(actual, expected/4, expected*4)

	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(actual))
	newTarget.Div(newTarget, big.NewInt(expected))

	minTarget, err := block.CompactToTarget(MinDifficultyBits)
	if err != nil {
		return 0, err
	}
	maxTarget, err := block.CompactToTarget(MaxDifficultyBits)
	if err != nil {
		return 0, err
	}
	newTarget = clampTarget(newTarget, minTarget, maxTarget)

	newBits := block.TargetToCompact(newTarget)
	logger.WithFields(log.Fields{"old_bits": oldBits, "new_bits": newBits, "actual_span": actual}).Debug("difficulty retargeted")
	return newBits, nil
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// HybridAdjust applies the PoW/PoS block-ratio correction on top of a
// freshly retargeted compact target. powRatio is the observed fraction of
// PoW blocks over the adjustment window; targetRatio is the configured
// pow_target_ratio. On any failure to produce a valid compact
// representation, it falls back to preHybridBits unchanged.
func HybridAdjust(preHybridBits uint32, powRatio, targetRatio float64) uint32 {
	target, err := block.CompactToTarget(preHybridBits)
	if err != nil {
		return preHybridBits
	}

	adjusted := new(big.Rat).SetInt(target)
	switch {
	case powRatio < targetRatio && targetRatio > 0:
		factor := targetRatio / powRatio
		if factor > 2 {
			factor = 2
		}
		adjusted.Mul(adjusted, new(big.Rat).SetFloat64(factor))
	case powRatio > targetRatio && powRatio > 0:
		factor := powRatio / targetRatio
		if factor > 1.5 {
			factor = 1.5
		}
		adjusted.Quo(adjusted, new(big.Rat).SetFloat64(factor))
	default:
		return preHybridBits
	}

	num := new(big.Int).Quo(adjusted.Num(), adjusted.Denom())

	minTarget, err := block.CompactToTarget(MinDifficultyBits)
	if err != nil {
		return preHybridBits
	}
	maxTarget, err := block.CompactToTarget(MaxDifficultyBits)
	if err != nil {
		return preHybridBits
	}
	num = clampTarget(num, minTarget, maxTarget)

	bits := block.TargetToCompact(num)
	if _, err := block.CompactToTarget(bits); err != nil {
		logger.WithField("pre_hybrid_bits", preHybridBits).Warn("hybrid adjustment produced invalid compact target, falling back")
		return preHybridBits
	}
	return bits
}

// ExpectedBits computes the target compact difficulty for the block at
// height, given the previous block's bits and, when height starts a new
// adjustment interval, the timestamps bounding that interval plus the
// hybrid PoW-ratio inputs. When height does not start an interval, the
// expected bits equal prevBits unchanged.
func ExpectedBits(height uint32, prevBits uint32, firstTimestamp, lastTimestamp uint32, powRatio, targetRatio float64) (uint32, error) {
	if height == 0 || height%block.DifficultyAdjustmentInterval != 0 {
		return prevBits, nil
	}
	retargeted, err := Retarget(prevBits, firstTimestamp, lastTimestamp)
	if err != nil {
		return 0, err
	}
	return HybridAdjust(retargeted, powRatio, targetRatio), nil
}
