// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package block

// GenesisTimestamp is the fixed Unix timestamp stamped on the genesis block.
const GenesisTimestamp = 1231006505

// GenesisDifficultyTarget is the compact target the genesis block is mined
// (trivially) against.
const GenesisDifficultyTarget = 0x1D00FFFF

// halvingEpochs is the number of halvings after which the subsidy is defined
// to be exactly zero, the width of a uint64 shift. The shifted reward itself
// already reaches zero from epoch 33 on (50e8 >> 33 == 0).
const halvingEpochs = 64

// Subsidy computes the block reward at height, halving every
// HalvingInterval blocks and going to zero after halvingEpochs halvings.
// Subsidy is recomputed at every height; the genesis reward constant is
// never reused past height 0.
func Subsidy(height uint32) uint64 {
	epoch := height / HalvingInterval
	if epoch >= halvingEpochs {
		return 0
	}
	return InitialBlockReward >> epoch
}

// CreateGenesis builds the fixed genesis block, whose coinbase carries
// message as its unlocking script (the arbitrary coinbase data field) and
// pays the initial subsidy to lockingScript.
func CreateGenesis(message string, lockingScript []byte) (*Block, error) {
	coinbase := Transaction{
		Version: 1,
		Inputs: []TxInput{
			NewInput(NullOutPoint(), []byte(message)),
		},
		Outputs: []TxOutput{
			{Value: InitialBlockReward, LockingScript: lockingScript},
		},
		Locktime: 0,
	}

	b := &Block{
		Header: BlockHeader{
			Version:          1,
			PrevBlockHash:    ZeroHash,
			Timestamp:        GenesisTimestamp,
			DifficultyTarget: GenesisDifficultyTarget,
			Nonce:            0,
			Height:           0,
		},
		Transactions: []Transaction{coinbase},
	}

	root, err := b.CalculateRoot()
	if err != nil {
		return nil, err
	}
	b.Header.MerkleRoot = root
	return b, nil
}
