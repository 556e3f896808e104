// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package carrier

import (
	"io"
	"log"
	"os"
	"time"

	"github.com/go-lpc/svec/firmware"
	"github.com/go-lpc/svec/vme"
)

// Window is a mapped CR/CSR register window owned by a Device.
type Window interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}

// Mapper maps a span of the VME bus.
type Mapper func(m vme.Mapping) (Window, error)

type config struct {
	msg     *log.Logger
	timeout time.Duration // maximum duration of a single poll
	poll    time.Duration // interval between two polls
	reset   time.Duration // settle time of the core reset
	verbose bool

	device string   // vme_user master window device
	mapper Mapper   // overrides device when set
	fwdirs []string // firmware search path
}

func newConfig() config {
	return config{
		msg:     log.New(os.Stdout, "svec: ", 0),
		timeout: 1 * time.Second,
		poll:    0,
		reset:   10 * time.Millisecond,
		device:  vme.DefaultDevice,
		fwdirs:  firmware.DefaultDirs(),
	}
}

func (cfg *config) mapWindow(m vme.Mapping) (Window, error) {
	if cfg.mapper != nil {
		return cfg.mapper(m)
	}
	return vme.Map(cfg.device, m)
}

// Option configures a Board, a Device or a Driver.
type Option func(*config)

// WithLogger sets the logger used to report board operations.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithTimeout sets the maximum duration of each bootloader poll
// (FIFO back-pressure, completion).
// A zero or negative duration disables the bound: only the context
// can then interrupt a poll.
func WithTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = d
	}
}

// WithPollInterval sets the delay between two reads of a polled
// bootloader register. The default is to poll back-to-back.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.poll = d
	}
}

// WithResetDelay sets the width of the core reset pulse.
func WithResetDelay(d time.Duration) Option {
	return func(cfg *config) {
		cfg.reset = d
	}
}

// WithVerbose enables the register read-back report after activation.
func WithVerbose(v bool) Option {
	return func(cfg *config) {
		cfg.verbose = v
	}
}

// WithDevice sets the vme_user master window device used to map
// CR/CSR windows.
func WithDevice(dev string) Option {
	return func(cfg *config) {
		cfg.device = dev
		cfg.mapper = nil
	}
}

// WithMemDevice maps CR/CSR windows through a memory device (e.g.
// /dev/mem) exposing the CR/CSR address space at the physical address
// base.
func WithMemDevice(devmem string, base int64) Option {
	return WithMapper(func(m vme.Mapping) (Window, error) {
		return vme.MapMem(devmem, base, m)
	})
}

// WithMapper sets the function used to map CR/CSR windows.
func WithMapper(f Mapper) Option {
	return func(cfg *config) {
		cfg.mapper = f
	}
}

// WithFirmwareDirs sets the firmware search path.
func WithFirmwareDirs(dirs ...string) Option {
	return func(cfg *config) {
		cfg.fwdirs = append([]string(nil), dirs...)
	}
}
