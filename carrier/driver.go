// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package carrier

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Driver handles a set of carrier boards.
type Driver struct {
	mu   sync.Mutex
	msg  *log.Logger
	cfg  config
	cfgs Configs

	devs  map[int]*Device
	sts   map[int]Status      // status of boards that failed to probe
	locks map[int]*sync.Mutex // serializes map/boot/close of each board
}

// NewDriver returns a driver for the configured boards.
// No board is mapped until Probe is called.
func NewDriver(cfgs Configs, opts ...Option) (*Driver, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("svec: no board configured")
	}
	if len(cfgs) > MaxDevices {
		return nil, fmt.Errorf("svec: too many boards (%d > %d)", len(cfgs), MaxDevices)
	}

	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	drv := &Driver{
		msg:   cfg.msg,
		cfg:   cfg,
		cfgs:  make(Configs, len(cfgs)),
		devs:  make(map[int]*Device, len(cfgs)),
		sts:   make(map[int]Status),
		locks: make(map[int]*sync.Mutex, len(cfgs)),
	}
	for lun, board := range cfgs {
		if lun != board.LUN {
			return nil, fmt.Errorf("svec: configuration of card lun %d registered as lun %d", board.LUN, lun)
		}
		err := drv.cfgs.Add(board)
		if err != nil {
			return nil, err
		}
		drv.locks[lun] = new(sync.Mutex)
	}
	return drv, nil
}

// Probe maps and boots all the configured boards, concurrently.
// Boards already mapped are booted again.
// Boards that fail are unmapped; Probe returns the first error.
func (drv *Driver) Probe(ctx context.Context) error {
	var grp errgroup.Group
	for _, lun := range drv.cfgs.LUNs() {
		lun := lun
		grp.Go(func() error {
			return drv.Reload(ctx, lun)
		})
	}
	return grp.Wait()
}

func (drv *Driver) probe(ctx context.Context, board BoardConfig) error {
	drv.msg.Printf("probe for card lun %02d", board.LUN)

	dev, err := newDevice(board, drv.cfg)
	if err != nil {
		drv.fail(board, err)
		return err
	}

	err = dev.Boot(ctx)
	if err != nil {
		st := dev.Status()
		_ = dev.Close()
		st.State = "failed"
		drv.mu.Lock()
		drv.sts[board.LUN] = st
		drv.mu.Unlock()
		return err
	}

	drv.mu.Lock()
	defer drv.mu.Unlock()
	delete(drv.sts, board.LUN)
	drv.devs[board.LUN] = dev
	return nil
}

func (drv *Driver) fail(board BoardConfig, err error) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	drv.sts[board.LUN] = Status{
		LUN:         board.LUN,
		Description: board.Description(),
		State:       "failed",
		Outcome:     OutcomeOf(err),
		Err:         err,
	}
}

// Reload boots again the board with the provided logical unit number.
// A board that failed to probe is probed again.
func (drv *Driver) Reload(ctx context.Context, lun int) error {
	board, ok := drv.cfgs[lun]
	if !ok {
		return fmt.Errorf("svec: unknown card lun %d", lun)
	}

	lock := drv.locks[lun]
	lock.Lock()
	defer lock.Unlock()

	drv.mu.Lock()
	dev, ok := drv.devs[lun]
	drv.mu.Unlock()

	if !ok {
		return drv.probe(ctx, board)
	}
	return dev.Boot(ctx)
}

// Device returns the mapped board with the provided logical unit number.
func (drv *Driver) Device(lun int) (*Device, bool) {
	drv.mu.Lock()
	defer drv.mu.Unlock()
	dev, ok := drv.devs[lun]
	return dev, ok
}

// Configs returns the configuration of the boards.
func (drv *Driver) Configs() Configs {
	cfgs := make(Configs, len(drv.cfgs))
	for k, v := range drv.cfgs {
		cfgs[k] = v
	}
	return cfgs
}

// Statuses returns the status of all the configured boards, sorted by
// logical unit number.
func (drv *Driver) Statuses() []Status {
	drv.mu.Lock()
	devs := make(map[int]*Device, len(drv.devs))
	for k, v := range drv.devs {
		devs[k] = v
	}
	sts := make(map[int]Status, len(drv.sts))
	for k, v := range drv.sts {
		sts[k] = v
	}
	drv.mu.Unlock()

	var out []Status
	for _, lun := range drv.cfgs.LUNs() {
		if dev, ok := devs[lun]; ok {
			out = append(out, dev.Status())
			continue
		}
		if st, ok := sts[lun]; ok {
			out = append(out, st)
			continue
		}
		board := drv.cfgs[lun]
		out = append(out, Status{
			LUN:         lun,
			Description: board.Description(),
			State:       "unprobed",
		})
	}
	return out
}

// Close unmaps all the boards.
func (drv *Driver) Close() error {
	var err error
	for _, lun := range drv.cfgs.LUNs() {
		e := drv.close(lun)
		if e != nil && err == nil {
			err = e
		}
	}
	return err
}

func (drv *Driver) close(lun int) error {
	lock := drv.locks[lun]
	lock.Lock()
	defer lock.Unlock()

	drv.mu.Lock()
	dev, ok := drv.devs[lun]
	delete(drv.devs, lun)
	drv.mu.Unlock()

	if !ok {
		return nil
	}
	return dev.Close()
}
