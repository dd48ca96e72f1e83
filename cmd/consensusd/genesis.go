// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package main

import (
	"bytes"
	"encoding/hex"
	"fmt"

	cfg "github.com/hybridledger/consensus-core/pkg/config"
	"github.com/hybridledger/consensus-core/pkg/core/block"
	"github.com/urfave/cli"
)

// genesisAction serializes the network's genesis block and prints it as hex.
func genesisAction(ctx *cli.Context) error {
	if err := cfg.Load(); err != nil {
		return err
	}

	g := cfg.DecodeGenesis()

	var headerBuf bytes.Buffer
	if err := block.MarshalHeader(&headerBuf, &g.Header); err != nil {
		return err
	}

	hash, err := g.Hash()
	if err != nil {
		return err
	}

	fmt.Printf("hash: %s\n", hash.String())
	fmt.Printf("header: %s\n", hex.EncodeToString(headerBuf.Bytes()))
	for i := range g.Transactions {
		var txBuf bytes.Buffer
		if err := block.MarshalTransaction(&txBuf, &g.Transactions[i]); err != nil {
			return err
		}
		fmt.Printf("tx[%d]: %s\n", i, hex.EncodeToString(txBuf.Bytes()))
	}
	return nil
}
