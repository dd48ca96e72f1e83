// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package main

import (
	"fmt"
	"time"

	cfg "github.com/hybridledger/consensus-core/pkg/config"
	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/hybridledger/consensus-core/pkg/core/chain"
	"github.com/urfave/cli"
)

// mineAction extends the current tip with a single freshly-mined
// proof-of-work block, paying the coinbase reward to an unspendable script.
func mineAction(ctx *cli.Context) error {
	datadir = ctx.GlobalString(DataDirFlag.Name)

	if err := cfg.Load(); err != nil {
		return err
	}

	engine, err := bootstrapEngine(datadir)
	if err != nil {
		return err
	}

	tipHash, tipHeight := engine.Tip()
	height := tipHeight + 1
	reward := chain.BlockReward(height, true)

	coinbase := block.Transaction{Locktime: 0}
	coinbase.AddInput(block.NewInput(block.NullOutPoint(), nil))
	coinbase.AddOutput(block.TxOutput{Value: reward, LockingScript: []byte("mined-by-consensusd")})

	txids := []block.Hash256{}
	txid, err := coinbase.TxID()
	if err != nil {
		return err
	}
	txids = append(txids, txid)

	template := block.Block{
		Header: block.BlockHeader{
			Version:          1,
			PrevBlockHash:    tipHash,
			MerkleRoot:       block.MerkleRoot(txids),
			Timestamp:        uint32(time.Now().Unix()),
			DifficultyTarget: block.GenesisDifficultyTarget,
			Height:           height,
		},
		Transactions: []block.Transaction{coinbase},
	}

	result, err := engine.MinePoW(template.Header, 1<<32, ctx.Int("workers"))
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("exhausted nonce space without finding a valid header")
	}

	template.Header.Nonce = result.Nonce
	if err := engine.AcceptBlock(&template); err != nil {
		return err
	}

	fmt.Printf("mined block %d: %s (%d iterations, %s)\n", height, result.Hash.String(), result.Iterations, result.Elapsed)
	return nil
}
