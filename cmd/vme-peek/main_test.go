// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-lpc/svec/vme"
	"github.com/google/go-cmp/cmp"
)

func newDevMem(t *testing.T) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "dev.mem")
	raw := make([]byte, 0x100000)
	copy(raw[0xf000c:], "SVEC")
	err := os.WriteFile(fname, raw, 0644)
	if err != nil {
		t.Fatalf("could not create fake dev-mem: %+v", err)
	}
	return fname
}

func TestRun(t *testing.T) {
	mem := newDevMem(t)

	for _, tc := range []struct {
		name string
		cfg  config
		want string
	}{
		{
			name: "read",
			cfg:  config{skip: 0x7000c, count: 2, offsets: true},
			want: "000f000c: 53564543\n000f0010: 00000000\n",
		},
		{
			name: "read-no-offsets",
			cfg:  config{skip: 0x7000c, count: 1},
			want: "53564543\n",
		},
		{
			name: "read-none",
			cfg:  config{skip: 0x7000c, count: 0, offsets: true},
			want: "",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			cfg.mem = mem
			cfg.addr = 0x80000
			cfg.am = vme.A32UserDataSCT
			cfg.width = vme.D32

			o := new(bytes.Buffer)
			err := run(o, cfg)
			if err != nil {
				t.Fatalf("could not run: %+v", err)
			}
			if got, want := o.String(), tc.want; got != want {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", got, want)
			}
		})
	}
}

func TestRunWrite(t *testing.T) {
	mem := newDevMem(t)

	err := run(io.Discard, config{
		mem:   mem,
		addr:  0x80000,
		am:    vme.CRCSR,
		width: vme.D32,
		skip:  0x70004,
		count: 2,
		write: true,
		word:  0xde,
	})
	if err != nil {
		t.Fatalf("could not run: %+v", err)
	}

	raw, err := os.ReadFile(mem)
	if err != nil {
		t.Fatalf("could not read fake dev-mem: %+v", err)
	}
	if got, want := raw[0xf0004:0xf0010], []byte{0, 0, 0, 0xde, 0, 0, 0, 0xde, 'S', 'V', 'E', 'C'}; !bytes.Equal(got, want) {
		t.Fatalf("invalid memory:\ngot= % x\nwant=% x", got, want)
	}
}

func TestRunErrors(t *testing.T) {
	mem := newDevMem(t)

	for _, tc := range []struct {
		name string
		cfg  config
	}{
		{
			name: "invalid-am",
			cfg:  config{mem: mem, addr: 0x80000, am: 0x01, width: vme.D32, count: 1},
		},
		{
			name: "out-of-window",
			cfg:  config{mem: mem, addr: 0x80000, am: vme.CRCSR, width: vme.D32, skip: 0x7fffc, count: 2},
		},
		{
			name: "no-device",
			cfg:  config{mem: filepath.Join(t.TempDir(), "not-there"), addr: 0x80000, am: vme.CRCSR, width: vme.D32, count: 1},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := run(io.Discard, tc.cfg)
			if err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

type fakeTerm struct {
	lines []string
	hist  []string
}

func (term *fakeTerm) Prompt(string) (string, error) {
	if len(term.lines) == 0 {
		return "", io.EOF
	}
	line := term.lines[0]
	term.lines = term.lines[1:]
	return line, nil
}

func (term *fakeTerm) AppendHistory(item string) {
	term.hist = append(term.hist, item)
}

func TestShell(t *testing.T) {
	mem := newDevMem(t)
	win, err := vme.MapMem(mem, 0, vme.Mapping{
		Addr: 0x80000, AM: vme.CRCSR, Width: vme.D32, Size: winSize,
	})
	if err != nil {
		t.Fatalf("could not map window: %+v", err)
	}
	defer win.Close()

	for _, tc := range []struct {
		name  string
		lines []string
		want  string
		hist  []string
	}{
		{
			name:  "read-write",
			lines: []string{"r 0x7000c", "", "w 0x70000 0x40 2", "r 0x70000 3", "bad", "r", "q", "r 0x7000c"},
			want: "000f000c: 53564543\n" +
				"000f0000: 00000040\n" +
				"000f0004: 00000040\n" +
				"000f0008: 00000000\n",
			hist: []string{"r 0x7000c", "w 0x70000 0x40 2", "r 0x70000 3", "bad", "r", "q"},
		},
		{
			name:  "eof",
			lines: []string{"r 0x7000c"},
			want:  "000f000c: 53564543\n",
			hist:  []string{"r 0x7000c"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o := new(bytes.Buffer)
			p := &peeker{win: win, base: 0x80000, w: o, offsets: true}
			term := &fakeTerm{lines: tc.lines}

			err := p.shell(term)
			if err != nil {
				t.Fatalf("could not run shell: %+v", err)
			}

			// drop the banner.
			out := o.String()
			out = out[strings.Index(out, "\n")+1:]
			if got, want := out, tc.want; got != want {
				t.Fatalf("invalid output:\ngot= %q\nwant=%q", got, want)
			}
			if diff := cmp.Diff(tc.hist, term.hist); diff != "" {
				t.Fatalf("invalid history: (-want +got)\n%s", diff)
			}
		})
	}
}
