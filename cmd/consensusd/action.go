// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package main

import (
	"fmt"
	"os"
	"os/signal"

	cfg "github.com/hybridledger/consensus-core/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var (
	log     *logrus.Entry
	datadir string
)

func initLog() {
	log = logrus.WithFields(logrus.Fields{
		"app":    "consensusd",
		"prefix": "main",
	})
}

// serveAction loads the config, opens storage, boots an Engine anchored at
// genesis, and blocks until interrupted.
func serveAction(ctx *cli.Context) error {
	if arguments := ctx.Args(); len(arguments) > 0 {
		return fmt.Errorf("failed to read command argument: %q", arguments[0])
	}

	datadir = ctx.GlobalString(DataDirFlag.Name)

	if err := cfg.Load(); err != nil {
		log.WithError(err).Fatal("could not load config")
	}

	if cfg.Get().Logger.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(cfg.Get().Logger.Level); err == nil {
		logrus.SetLevel(lvl)
	}

	log.WithField("file", cfg.Get().UsedConfigFile).Info("loaded config file")
	log.WithField("network", cfg.Get().General.Network).Info("selected network")

	engine, err := bootstrapEngine(datadir)
	if err != nil {
		log.WithError(err).Fatal("could not bootstrap consensus engine")
	}

	hash, height := engine.Tip()
	log.WithFields(logrus.Fields{"height": height, "hash": hash.String()}).Info("engine ready")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt

	log.Info("terminated")
	return nil
}
