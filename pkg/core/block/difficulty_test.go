// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package block_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

func TestCompactTargetRoundTrip(t *testing.T) {
	cases := []uint32{0x1d00ffff, 0x1c7fff80, 0x207fffff, 0x03123456}
	for _, bits := range cases {
		target, err := block.CompactToTarget(bits)
		require.NoError(t, err)
		got := block.TargetToCompact(target)
		back, err := block.CompactToTarget(got)
		require.NoError(t, err)
		assert.Zerof(t, target.Cmp(back), "bits=%x round-trips to a different target", bits)
	}
}

func TestCompactToTargetRejectsNegativeSignBit(t *testing.T) {
	_, err := block.CompactToTarget(0x01800000)
	require.Error(t, err)
	var verr *block.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, block.KindDifficultyInvalid, verr.Kind())
}

func TestCalculateWorkIncreasesAsTargetShrinks(t *testing.T) {
	loose, err := block.CompactToTarget(0x1d00ffff)
	require.NoError(t, err)
	tight, err := block.CompactToTarget(0x1c00ffff)
	require.NoError(t, err)

	looseWork := block.CalculateWork(loose)
	tightWork := block.CalculateWork(tight)
	assert.Equal(t, 1, tightWork.Cmp(looseWork))
}

func TestHeaderMeetsTarget(t *testing.T) {
	target := big.NewInt(1000)
	var low, high block.Hash256
	low[block.HashSize-1] = 5
	high[0] = 0xff

	assert.True(t, block.HeaderMeetsTarget(low, target))
	assert.False(t, block.HeaderMeetsTarget(high, target))
}
