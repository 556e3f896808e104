// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command svec-load loads the firmware of SVEC carrier boards and
// configures their function 0.
//
// Usage: svec-load [OPTIONS]
//
// Example:
//
//	$> svec-load -cfg ./svec.ini
//	$> svec-load -db svec -crate vme-01 -timeout=2s
//	$> svec-load -db svec                     ## list known crates
//	$> svec-load -cfg ./svec.ini -mem /dev/mem -mem-base 0x40000000
package main // import "github.com/go-lpc/svec/cmd/svec-load"

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/go-lpc/svec/carrier"
	"github.com/go-lpc/svec/conddb"
	"github.com/go-lpc/svec/firmware"
	"github.com/go-lpc/svec/vme"
	"github.com/sbinet/pmon"
)

type config struct {
	cfg   string // INI configuration file
	db    string // configuration database
	crate string // VME crate name in the configuration database

	dev     string // vme_user master window device
	mem     string // memory device
	memBase int64  // physical address of the CR/CSR space on the memory device

	fwdirs  []string
	timeout time.Duration
	poll    time.Duration
	verbose bool

	pmon string // pmon output file
	freq time.Duration
}

func main() {
	log.SetPrefix("svec-load: ")
	log.SetFlags(0)

	var (
		cfgFlag = flag.String("cfg", "", "path to INI configuration file")
		dbFlag  = flag.String("db", "", "name of the configuration database")
		crate   = flag.String("crate", "", "name of the VME crate in the configuration database")
		dev     = flag.String("dev", vme.DefaultDevice, "vme_user master window device")
		mem     = flag.String("mem", "", "memory device exposing the CR/CSR space (e.g. /dev/mem)")
		memBase = flag.String("mem-base", "0", "physical address of the CR/CSR space on the memory device")
		fwdirs  = flag.String("fw-dir", strings.Join(firmware.DefaultDirs(), ":"), "colon-separated firmware search path")
		timeout = flag.Duration("timeout", 1*time.Second, "timeout of bootloader polls")
		poll    = flag.Duration("poll", 0, "interval between bootloader polls")
		verbose = flag.Bool("v", false, "enable verbose mode")
		mon     = flag.String("pmon", "", "path to pmon output file")
		freq    = flag.Duration("freq", 1*time.Second, "pmon frequency")
	)

	flag.Parse()

	base, err := strconv.ParseInt(*memBase, 0, 64)
	if err != nil {
		log.Fatalf("invalid memory device base address %q: %+v", *memBase, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = run(ctx, os.Stdout, config{
		cfg:     *cfgFlag,
		db:      *dbFlag,
		crate:   *crate,
		dev:     *dev,
		mem:     *mem,
		memBase: base,
		fwdirs:  filepath.SplitList(*fwdirs),
		timeout: *timeout,
		poll:    *poll,
		verbose: *verbose,
		pmon:    *mon,
		freq:    *freq,
	})
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(ctx context.Context, w io.Writer, cfg config) error {
	if cfg.pmon != "" {
		err := monitor(cfg.pmon, cfg.freq)
		if err != nil {
			return err
		}
	}

	var db *conddb.DB
	if cfg.db != "" {
		var err error
		db, err = conddb.Open(cfg.db)
		if err != nil {
			return fmt.Errorf("could not open configuration db: %w", err)
		}
		defer db.Close()
	}

	if db != nil && cfg.crate == "" {
		return listCrates(ctx, w, db)
	}

	boards, err := boardsFrom(ctx, cfg, db)
	if err != nil {
		return err
	}

	opts := []carrier.Option{
		carrier.WithLogger(log.New(os.Stdout, "svec: ", 0)),
		carrier.WithTimeout(cfg.timeout),
		carrier.WithPollInterval(cfg.poll),
		carrier.WithVerbose(cfg.verbose),
	}
	if cfg.dev != "" {
		opts = append(opts, carrier.WithDevice(cfg.dev))
	}
	if len(cfg.fwdirs) > 0 {
		opts = append(opts, carrier.WithFirmwareDirs(cfg.fwdirs...))
	}
	if cfg.mem != "" {
		opts = append(opts, carrier.WithMemDevice(cfg.mem, cfg.memBase))
	}

	drv, err := carrier.NewDriver(boards, opts...)
	if err != nil {
		return fmt.Errorf("could not create driver: %w", err)
	}
	defer drv.Close()

	errProbe := drv.Probe(ctx)
	sts := drv.Statuses()

	if db != nil {
		for _, st := range sts {
			err := db.LogBoot(ctx, cfg.crate, st)
			if err != nil {
				log.Printf("could not record boot of card lun %d: %+v", st.LUN, err)
			}
		}
	}

	err = printStatuses(w, sts)
	if err != nil {
		return fmt.Errorf("could not print boards status: %w", err)
	}

	if errProbe != nil {
		return fmt.Errorf("could not boot boards: %w", errProbe)
	}

	err = drv.Close()
	if err != nil {
		return fmt.Errorf("could not close driver: %w", err)
	}
	return nil
}

// boardsDB is the subset of the configuration database used by svec-load.
type boardsDB interface {
	Crates(ctx context.Context) ([]string, error)
	Boards(ctx context.Context, crate string) (carrier.Configs, error)
}

// listCrates displays the VME crates known to the configuration database.
func listCrates(ctx context.Context, w io.Writer, db boardsDB) error {
	crates, err := db.Crates(ctx)
	if err != nil {
		return fmt.Errorf("could not retrieve crates: %w", err)
	}
	if len(crates) == 0 {
		return fmt.Errorf("no crate in configuration db")
	}
	fmt.Fprintf(w, "no crate selected (-crate). known crates:\n")
	for _, crate := range crates {
		fmt.Fprintf(w, " - %s\n", crate)
	}
	return nil
}

func boardsFrom(ctx context.Context, cfg config, db boardsDB) (carrier.Configs, error) {
	switch {
	case cfg.cfg != "" && cfg.db != "":
		return nil, fmt.Errorf("-cfg and -db are mutually exclusive")
	case cfg.cfg != "":
		boards, err := carrier.ReadConfig(cfg.cfg)
		if err != nil {
			return nil, fmt.Errorf("could not read configuration: %w", err)
		}
		return boards, nil
	case cfg.db != "":
		if cfg.crate == "" {
			return nil, fmt.Errorf("missing crate name")
		}
		boards, err := db.Boards(ctx, cfg.crate)
		if err != nil {
			return nil, fmt.Errorf("could not retrieve configuration: %w", err)
		}
		return boards, nil
	}
	return nil, fmt.Errorf("missing configuration (-cfg or -db)")
}

func printStatuses(w io.Writer, sts []carrier.Status) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "LUN\tSTATE\tOUTCOME\tFIRMWARE\tSIZE\tDESCRIPTION\n")
	for _, st := range sts {
		outcome := "-"
		if st.State == "booted" || st.State == "failed" {
			outcome = st.Outcome.String()
		}
		fw := st.Firmware
		if fw == "" {
			fw = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n",
			st.LUN, st.State, outcome, fw, st.Size, st.Description,
		)
	}
	return tw.Flush()
}

// monitor records the resource usage of svec-load into fname, until
// the process exits.
func monitor(fname string, freq time.Duration) error {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return fmt.Errorf("could not monitor svec-load: %w", err)
	}

	f, err := os.Create(fname)
	if err != nil {
		return fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return nil
}
