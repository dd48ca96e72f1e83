// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package config

import (
	"encoding/hex"
	"log"

	"github.com/hybridledger/consensus-core/pkg/core/block"
)

// A single point of constants definition.
const (
	// MinFee is the minimum fee, in the smallest unit, accepted for a
	// relayed transaction.
	MinFee = uint64(100)

	// TestNetGenesisMessage seeds the testnet genesis coinbase's input
	// script, the way a Satoshi-style genesis carries an arbitrary tag.
	TestNetGenesisMessage = "hybridledger genesis"

	// TestNetGenesisLockingScript is the hex-encoded locking script paying
	// out the testnet genesis coinbase.
	TestNetGenesisLockingScript = "76a914000000000000000000000000000000000000000088ac"
)

// DecodeGenesis builds the genesis block for the configured network.
func DecodeGenesis() *block.Block {
	switch Get().General.Network {
	case "testnet":
		script, err := hex.DecodeString(TestNetGenesisLockingScript)
		if err != nil {
			log.Panic(err)
		}
		g, err := block.CreateGenesis(TestNetGenesisMessage, script)
		if err != nil {
			log.Panic(err)
		}
		return g
	default:
		script, err := hex.DecodeString(TestNetGenesisLockingScript)
		if err != nil {
			log.Panic(err)
		}
		g, err := block.CreateGenesis(TestNetGenesisMessage, script)
		if err != nil {
			log.Panic(err)
		}
		return g
	}
}
