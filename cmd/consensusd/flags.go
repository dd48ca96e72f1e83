// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package main

import "github.com/urfave/cli"

// DataDirFlag overrides the data directory used for chain storage.
var DataDirFlag = cli.StringFlag{
	Name:  "datadir",
	Usage: "Data directory for chain storage",
	Value: "chain",
}

// ConfigFlag points at a config file, in place of the default search path.
var ConfigFlag = cli.StringFlag{
	Name:  "config",
	Usage: "Path to the config file",
}

// GlobalFlags apply to every subcommand.
var GlobalFlags = []cli.Flag{
	DataDirFlag,
	ConfigFlag,
}
