// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli"
)

var app = cli.NewApp()

func init() {
	initLog()

	app.Action = serveAction
	app.Copyright = "Copyright (c) 2020 DUSK"
	app.Name = "consensusd"
	app.Usage = "Hybrid PoW/PoS consensus-core node"
	app.Author = "DUSK 2020"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		{
			Name:   "genesis",
			Usage:  "serializes the genesis block and prints it",
			Action: genesisAction,
		},
		{
			Name:  "mine",
			Usage: "mines a single proof-of-work block on top of the current tip",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "workers", Value: 1, Usage: "number of miner worker goroutines"},
			},
			Action: mineAction,
		},
	}
	app.Flags = append(app.Flags, GlobalFlags...)
}

func main() {
	defer handlePanic()

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		log.WithError(fmt.Errorf("%+v", r)).Errorln("application panic")
	}

	time.Sleep(time.Second * 1)
}
