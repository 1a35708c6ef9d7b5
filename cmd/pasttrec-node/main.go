// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pasttrec-node starts a TDAQ server driving the PASTTREC ASICs of
// a set of TrbNet boards.
//
// Usage:
//
//	pasttrec-node [OPTIONS] PATTERN [PATTERN...]
//
// On /config, the node opens the TrbNet bus and resolves the patterns.
// On /init, it resets the cables and pushes either the configurations of
// the -cfg file or the scan defaults.
// Between /start and /stop, it publishes scaler counts on /scalers.
package main // import "github.com/go-lpc/pasttrec/cmd/pasttrec-node"

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
)

func main() {
	var (
		cfg     = flag.String("cfg", "", "path to a baseline configuration file")
		iface   = flag.String("iface", "", "TrbNet interface (trbnet, shell or file)")
		settle  = flag.Duration("settle", 1*time.Second, "scaler measurement window")
		missing = flag.Bool("ignore-missing", false, "skip boards that do not respond")
	)

	cmd := flags.New()
	if len(cmd.Args) == 0 {
		log.Fatalf("missing pattern address")
	}

	dev := newNode(cmd.Args)
	dev.cfgName = *cfg
	dev.open = busOpener(*iface)
	dev.settle = *settle
	dev.ignoreMissing = *missing

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/scalers", dev.scalers)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
