// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package difficulty_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/difficulty"
)

const oldBits = 0x1c00ffff

func TestRetargetTightensWhenBlocksArriveFast(t *testing.T) {
	const expectedSpan = block.DifficultyAdjustmentInterval * block.TargetBlockTime
	first := uint32(1700000000)
	last := first + expectedSpan/8 // 8x too fast, clamped to 4x at most

	newBits, err := difficulty.Retarget(oldBits, first, last)
	require.NoError(t, err)

	oldTarget, err := block.CompactToTarget(oldBits)
	require.NoError(t, err)
	newTarget, err := block.CompactToTarget(newBits)
	require.NoError(t, err)

	assert.Equal(t, -1, newTarget.Cmp(oldTarget), "target should tighten (shrink) when blocks arrive too fast")
}

func TestRetargetLoosensWhenBlocksArriveSlow(t *testing.T) {
	const expectedSpan = block.DifficultyAdjustmentInterval * block.TargetBlockTime
	first := uint32(1700000000)
	last := first + expectedSpan*8 // 8x too slow, clamped to 4x at most

	newBits, err := difficulty.Retarget(oldBits, first, last)
	require.NoError(t, err)

	oldTarget, err := block.CompactToTarget(oldBits)
	require.NoError(t, err)
	newTarget, err := block.CompactToTarget(newBits)
	require.NoError(t, err)

	assert.Equal(t, 1, newTarget.Cmp(oldTarget), "target should loosen (grow) when blocks arrive too slowly")
}

func TestRetargetNeverExceedsMinMaxBounds(t *testing.T) {
	minTarget, err := block.CompactToTarget(difficulty.MinDifficultyBits)
	require.NoError(t, err)
	maxTarget, err := block.CompactToTarget(difficulty.MaxDifficultyBits)
	require.NoError(t, err)

	extremeSlow := uint32(1700000000 + block.DifficultyAdjustmentInterval*block.TargetBlockTime*100)
	newBits, err := difficulty.Retarget(difficulty.MinDifficultyBits, 1700000000, extremeSlow)
	require.NoError(t, err)
	newTarget, err := block.CompactToTarget(newBits)
	require.NoError(t, err)

	assert.LessOrEqual(t, newTarget.Cmp(minTarget), 0)
	assert.GreaterOrEqual(t, newTarget.Cmp(maxTarget), 0)
}

func TestExpectedBitsOnlyRetargetsAtIntervalBoundary(t *testing.T) {
	bits, err := difficulty.ExpectedBits(block.DifficultyAdjustmentInterval-1, oldBits, 0, 0, 1, 0.5)
	require.NoError(t, err)
	assert.Equal(t, uint32(oldBits), bits)
}

func TestHybridAdjustLoosensWhenPowUndershootsTarget(t *testing.T) {
	got := difficulty.HybridAdjust(oldBits, 0.1, 0.5)
	oldTarget, err := block.CompactToTarget(oldBits)
	require.NoError(t, err)
	newTarget, err := block.CompactToTarget(got)
	require.NoError(t, err)
	assert.Equal(t, 1, newTarget.Cmp(oldTarget), "too few pow blocks should loosen the pow target so pow becomes easier")
}
