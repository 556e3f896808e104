// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command svec-srv starts a TDAQ server managing the SVEC carrier boards
// of a VME crate.
//
// Usage: svec-srv [TDAQ-OPTIONS] svec.ini
//
// On /config, the boards configuration is read from the INI file.
// On /init, all the boards are loaded and activated.
// While running, boards are reloaded whenever their firmware file is
// updated, and the status of the boards is published on /status.
// Boot failures are reported by mail when the MAIL_USERNAME, MAIL_PASSWORD,
// MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment variables are set.
package main // import "github.com/go-lpc/svec/cmd/svec-srv"

import (
	"context"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
)

func main() {
	cmd := flags.New()
	if len(cmd.Args) < 1 {
		log.Fatalf("svec-srv: missing path to INI configuration file")
	}

	dev := newServer(cmd.Args[0])

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/status", dev.status)

	srv.RunHandle(dev.run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
