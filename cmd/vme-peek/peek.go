// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/peterh/liner"
)

type peeker struct {
	win interface {
		io.ReaderAt
		io.WriterAt
	}
	base    uint32 // VME address of the window
	w       io.Writer
	offsets bool

	xbuf [4]byte
}

func (p *peeker) read(off uint32) (uint32, error) {
	_, err := p.win.ReadAt(p.xbuf[:], int64(off))
	if err != nil {
		return 0, fmt.Errorf("could not read word at 0x%08x: %w", p.base+off, err)
	}
	return binary.BigEndian.Uint32(p.xbuf[:]), nil
}

func (p *peeker) write(off, v uint32) error {
	binary.BigEndian.PutUint32(p.xbuf[:], v)
	_, err := p.win.WriteAt(p.xbuf[:], int64(off))
	if err != nil {
		return fmt.Errorf("could not write word at 0x%08x: %w", p.base+off, err)
	}
	return nil
}

// dump displays n words, starting at offset off.
func (p *peeker) dump(off uint32, n int) error {
	for i := 0; i < n; i, off = i+1, off+4 {
		v, err := p.read(off)
		if err != nil {
			return err
		}
		if p.offsets {
			fmt.Fprintf(p.w, "%08x: ", p.base+off)
		}
		fmt.Fprintf(p.w, "%08x\n", v)
	}
	return nil
}

// fill writes v into n words, starting at offset off.
func (p *peeker) fill(off uint32, n int, v uint32) error {
	for i := 0; i < n; i, off = i+1, off+4 {
		err := p.write(off, v)
		if err != nil {
			return err
		}
	}
	return nil
}

type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

var errQuit = errors.New("quit")

// shell runs an interactive session until EOF or quit.
func (p *peeker) shell(term prompter) error {
	fmt.Fprintf(p.w, "window at 0x%08x. commands: r OFF [N], w OFF WORD [N], q\n", p.base)
	for {
		line, err := term.Prompt("vme> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		term.AppendHistory(line)

		err = p.exec(line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			log.Printf("%v", err)
		}
	}
}

func (p *peeker) exec(line string) error {
	args := strings.Fields(line)
	switch args[0] {
	case "q", "quit", "exit":
		return errQuit

	case "r", "read":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: r OFF [N]")
		}
		off, err := parseU32(args[1])
		if err != nil {
			return fmt.Errorf("invalid offset %q: %w", args[1], err)
		}
		n := 1
		if len(args) == 3 {
			v, err := parseU32(args[2])
			if err != nil {
				return fmt.Errorf("invalid word count %q: %w", args[2], err)
			}
			n = int(v)
		}
		return p.dump(off, n)

	case "w", "write":
		if len(args) < 3 || len(args) > 4 {
			return fmt.Errorf("usage: w OFF WORD [N]")
		}
		off, err := parseU32(args[1])
		if err != nil {
			return fmt.Errorf("invalid offset %q: %w", args[1], err)
		}
		v, err := parseU32(args[2])
		if err != nil {
			return fmt.Errorf("invalid word %q: %w", args[2], err)
		}
		n := 1
		if len(args) == 4 {
			c, err := parseU32(args[3])
			if err != nil {
				return fmt.Errorf("invalid word count %q: %w", args[3], err)
			}
			n = int(c)
		}
		return p.fill(off, n, v)
	}
	return fmt.Errorf("unknown command %q", args[0])
}
