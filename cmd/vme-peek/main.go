// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vme-peek reads or writes 32-bit words on the VME bus.
//
// Usage: vme-peek [OPTIONS]
//
// Example:
//
//	$> vme-peek -v 0x80000 -s 0x7000c        ## read the bootloader ID
//	$> vme-peek -v 0x80000 -a 0x2f -s 0x70004 -w 0xde
//	$> vme-peek -v 0x39000000 -n 16
//	$> vme-peek -v 0x80000 -a 0x2f -i         ## interactive session
//
// Words are read and written big-endian.
package main // import "github.com/go-lpc/svec/cmd/vme-peek"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/go-lpc/svec/vme"
	"github.com/peterh/liner"
)

const winSize = 0x80000

type config struct {
	dev     string
	mem     string
	memBase int64

	addr  uint32
	skip  uint32
	am    vme.AddrModifier
	width vme.DataWidth
	count int

	write   bool
	word    uint32
	offsets bool

	interactive bool
}

func main() {
	log.SetPrefix("vme-peek: ")
	log.SetFlags(0)

	var (
		dev     = flag.String("dev", vme.DefaultDevice, "vme_user master window device")
		mem     = flag.String("mem", "", "memory device exposing the VME address space (e.g. /dev/mem)")
		memBase = flag.String("mem-base", "0", "physical address of the VME address space on the memory device")
		addr    = flag.String("v", "0", "VME base address of the window")
		skip    = flag.String("s", "0", "offset of the first word, in bytes")
		dw      = flag.Uint("d", uint(vme.D32), "data width")
		am      = flag.String("a", "0x09", "address modifier")
		count   = flag.Int("n", 1, "number of words")
		word    = flag.String("w", "", "word to write")
		noOffs  = flag.Bool("o", false, "do not display addresses")
		inter   = flag.Bool("i", false, "interactive session")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: vme-peek [OPTIONS]

Example:

 $> vme-peek -v 0x80000 -s 0x7000c
 $> vme-peek -v 0x80000 -a 0x2f -s 0x70004 -w 0xde

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	cfg := config{
		dev:         *dev,
		mem:         *mem,
		width:       vme.DataWidth(*dw),
		count:       *count,
		offsets:     !*noOffs,
		interactive: *inter,
	}

	var err error
	cfg.memBase, err = strconv.ParseInt(*memBase, 0, 64)
	if err != nil {
		log.Fatalf("invalid memory device base address %q: %+v", *memBase, err)
	}
	cfg.addr, err = parseU32(*addr)
	if err != nil {
		log.Fatalf("invalid VME address %q: %+v", *addr, err)
	}
	cfg.skip, err = parseU32(*skip)
	if err != nil {
		log.Fatalf("invalid offset %q: %+v", *skip, err)
	}
	v, err := strconv.ParseUint(*am, 0, 8)
	if err != nil {
		log.Fatalf("invalid address modifier %q: %+v", *am, err)
	}
	cfg.am = vme.AddrModifier(v)
	if *word != "" {
		cfg.write = true
		cfg.word, err = parseU32(*word)
		if err != nil {
			log.Fatalf("invalid word %q: %+v", *word, err)
		}
	}

	err = run(os.Stdout, cfg)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(stdout io.Writer, cfg config) error {
	m := vme.Mapping{
		Addr:  cfg.addr,
		AM:    cfg.am,
		Width: cfg.width,
		Size:  winSize,
	}

	var (
		win *vme.Window
		err error
	)
	switch cfg.mem {
	case "":
		win, err = vme.Map(cfg.dev, m)
	default:
		win, err = vme.MapMem(cfg.mem, cfg.memBase, m)
	}
	if err != nil {
		return fmt.Errorf("could not map at 0x%08x: %w", cfg.addr, err)
	}
	defer win.Close()

	log.Printf("mapped %v", m)

	p := &peeker{win: win, base: cfg.addr, w: stdout, offsets: cfg.offsets}
	switch {
	case cfg.interactive:
		term := liner.NewLiner()
		term.SetCtrlCAborts(true)
		err = p.shell(term)
		_ = term.Close()
	case cfg.write:
		err = p.fill(cfg.skip, cfg.count, cfg.word)
	default:
		err = p.dump(cfg.skip, cfg.count)
	}
	if err != nil {
		return err
	}

	err = win.Close()
	if err != nil {
		return fmt.Errorf("could not unmap window: %w", err)
	}
	return nil
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
