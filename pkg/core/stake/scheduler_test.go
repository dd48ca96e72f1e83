// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package stake_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/stake"
)

func matureRegistry(t *testing.T, n int) *stake.Registry {
	t.Helper()
	r := stake.NewRegistry(1000, 0)
	for i := 0; i < n; i++ {
		id := block.Hash256{byte(i + 1)}
		require.NoError(t, r.AddValidator(id, nil, uint64(1000*(i+1)), 0))
	}
	r.UpdateStakeMaturity(0)
	return r
}

func TestSelectValidatorIsDeterministic(t *testing.T) {
	r := matureRegistry(t, 5)
	prevHash := block.Hash256{9, 9, 9}

	first, ok := r.SelectValidator(1700000000, prevHash, 100)
	require.True(t, ok)

	second, ok := r.SelectValidator(1700000000, prevHash, 100)
	require.True(t, ok)

	assert.Equal(t, first, second)
}

func TestSelectValidatorChangesWithSlotTime(t *testing.T) {
	r := matureRegistry(t, 5)
	prevHash := block.Hash256{9, 9, 9}

	seen := make(map[block.Hash256]bool)
	for slotTime := uint64(1700000000); slotTime < 1700000000+20*3600; slotTime += 3600 {
		id, ok := r.SelectValidator(slotTime, prevHash, 100)
		require.True(t, ok)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1, "selection should vary across enough distinct slots")
}

func TestSelectValidatorFailsWithNoEligibleValidators(t *testing.T) {
	r := stake.NewRegistry(1000, 0)
	_, ok := r.SelectValidator(1700000000, block.Hash256{}, 0)
	assert.False(t, ok)
}

func TestGenerateUpcomingSlotsAlternatesAfterActivation(t *testing.T) {
	r := matureRegistry(t, 3)
	slots := r.GenerateUpcomingSlots(1700000000, 10, 6, 10, block.Hash256{1, 2})

	require.Len(t, slots, 6)
	for i, s := range slots {
		if i%2 == 1 {
			assert.NotNil(t, s.AssignedValidator, "odd position %d should be a pos slot", i)
		} else {
			assert.Nil(t, s.AssignedValidator, "even position %d should be a pow slot", i)
		}
	}
}
