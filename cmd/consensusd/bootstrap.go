// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package main

import (
	cfg "github.com/hybridledger/consensus-core/pkg/config"
	"github.com/hybridledger/consensus-core/pkg/core/chain"
	"github.com/hybridledger/consensus-core/pkg/core/script"
	"github.com/hybridledger/consensus-core/pkg/store"

	// blank imports register the heavy_v1/lite_v1 drivers with pkg/store.
	_ "github.com/hybridledger/consensus-core/pkg/store/heavy"
	_ "github.com/hybridledger/consensus-core/pkg/store/lite"
)

// openStore opens the storage backend named in the loaded config.
func openStore(datadir string) (store.BlockchainStore, error) {
	c := cfg.Get()
	drv, err := store.From(c.Storage.Backend)
	if err != nil {
		return nil, err
	}

	dir := c.Storage.Dir
	if dir == "" {
		dir = datadir
	}
	return drv.Open(dir, false)
}

// bootstrapEngine wires the storage backend, genesis block and configured
// engine parameters into a ready-to-run consensus Engine.
func bootstrapEngine(datadir string) (*chain.Engine, error) {
	s, err := openStore(datadir)
	if err != nil {
		return nil, err
	}

	c := cfg.Get()
	genesis := cfg.DecodeGenesis()

	engineCfg := chain.Config{
		MinStakeAmount:      c.Engine.MinStakeAmount,
		StakeMaturityBlocks: c.Engine.StakeMaturityBlocks,
		PosActivationHeight: c.Engine.PosActivationHeight,
		PowTargetRatio:      c.Engine.PowTargetRatio,
		WorkerCount:         c.Engine.WorkerCount,
	}

	return chain.New(s, genesis, engineCfg, script.Evaluate)
}
