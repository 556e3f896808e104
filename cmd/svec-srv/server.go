// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/svec/carrier"
	"github.com/go-lpc/svec/firmware"
)

// msgstream is the subset of the TDAQ message stream used by the server.
type msgstream interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type server struct {
	fname  string           // INI configuration file
	opts   []carrier.Option // driver options
	fwdirs []string         // firmware search path

	mu     sync.Mutex
	drv    *carrier.Driver
	data   chan []byte
	reconf chan struct{} // signals a new driver to the firmware watcher

	alert func(st carrier.Status)
}

func newServer(fname string) *server {
	return &server{
		fname:  fname,
		fwdirs: firmware.DefaultDirs(),
		data:   make(chan []byte, 32),
		reconf: make(chan struct{}, 1),
		alert:  alertMail,
	}
}

func (srv *server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return srv.configure(ctx.Msg)
}

func (srv *server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return srv.init(ctx.Ctx, ctx.Msg)
}

func (srv *server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return srv.close()
}

func (srv *server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	srv.publish(ctx.Msg)
	return nil
}

func (srv *server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return nil
}

func (srv *server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return srv.close()
}

func (srv *server) configure(msg msgstream) error {
	cfgs, err := carrier.ReadConfig(srv.fname)
	if err != nil {
		msg.Errorf("could not read configuration %q: %+v", srv.fname, err)
		return fmt.Errorf("could not read configuration %q: %w", srv.fname, err)
	}

	opts := append([]carrier.Option{carrier.WithFirmwareDirs(srv.fwdirs...)}, srv.opts...)
	drv, err := carrier.NewDriver(cfgs, opts...)
	if err != nil {
		msg.Errorf("could not create driver: %+v", err)
		return fmt.Errorf("could not create driver: %w", err)
	}

	srv.mu.Lock()
	old := srv.drv
	srv.drv = drv
	srv.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	select {
	case srv.reconf <- struct{}{}:
	default:
	}

	for _, lun := range cfgs.LUNs() {
		msg.Infof("configured %s", cfgs[lun].Description())
	}
	return nil
}

func (srv *server) driver() (*carrier.Driver, error) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.drv == nil {
		return nil, fmt.Errorf("boards not configured")
	}
	return srv.drv, nil
}

func (srv *server) init(ctx context.Context, msg msgstream) error {
	drv, err := srv.driver()
	if err != nil {
		msg.Errorf("could not initialize boards: %+v", err)
		return err
	}

	err = drv.Probe(ctx)
	srv.report(drv.Statuses(), msg)
	if err != nil {
		msg.Errorf("could not boot boards: %+v", err)
		return fmt.Errorf("could not boot boards: %w", err)
	}
	return nil
}

func (srv *server) reload(ctx context.Context, msg msgstream, luns []int) {
	drv, err := srv.driver()
	if err != nil {
		msg.Errorf("could not reload boards: %+v", err)
		return
	}

	for _, lun := range luns {
		msg.Infof("reloading card lun %d...", lun)
		err := drv.Reload(ctx, lun)
		if err != nil {
			msg.Errorf("could not reload card lun %d: %+v", lun, err)
		}
	}
	srv.report(drv.Statuses(), msg)
}

// report publishes the boards status and raises an alert for every
// failed board.
func (srv *server) report(sts []carrier.Status, msg msgstream) {
	for _, st := range sts {
		if st.State != "failed" {
			continue
		}
		msg.Errorf("card lun %d failed: %v (%+v)", st.LUN, st.Outcome, st.Err)
		if srv.alert != nil {
			srv.alert(st)
		}
	}
	srv.send(sts, msg)
}

func (srv *server) publish(msg msgstream) {
	drv, err := srv.driver()
	if err != nil {
		return
	}
	srv.send(drv.Statuses(), msg)
}

func (srv *server) send(sts []carrier.Status, msg msgstream) {
	select {
	case srv.data <- statusFrame(sts):
	default:
		msg.Debugf("status queue full, dropping status update")
	}
}

func (srv *server) close() error {
	srv.mu.Lock()
	drv := srv.drv
	srv.drv = nil
	srv.mu.Unlock()

	if drv == nil {
		return nil
	}
	err := drv.Close()
	if err != nil {
		return fmt.Errorf("could not close driver: %w", err)
	}
	return nil
}

func (srv *server) status(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case data := <-srv.data:
		dst.Body = data
	}
	return nil
}

func (srv *server) run(ctx tdaq.Context) error {
	return srv.watch(ctx.Ctx, ctx.Msg)
}

// watch reloads boards whenever their firmware file changes, until ctx
// is done. The set of watched files follows the current configuration.
func (srv *server) watch(ctx context.Context, msg msgstream) error {
	select {
	case <-srv.reconf:
	default:
	}

	for {
		wctx, cancel := context.WithCancel(ctx)
		errc := make(chan error, 1)
		go func() {
			errc <- srv.watchFiles(wctx, msg)
		}()

		select {
		case <-ctx.Done():
			cancel()
			return <-errc
		case err := <-errc:
			cancel()
			return err
		case <-srv.reconf:
			cancel()
			err := <-errc
			if err != nil {
				return err
			}
			msg.Infof("configuration changed, watching new firmwares")
		}
	}
}

// watchFiles watches the firmware files of the current driver.
func (srv *server) watchFiles(ctx context.Context, msg msgstream) error {
	drv, err := srv.driver()
	if err != nil {
		msg.Errorf("could not watch firmwares: %+v", err)
		<-ctx.Done()
		return nil
	}

	luns := firmwareLUNs(drv.Configs(), srv.fwdirs, msg)
	if len(luns) == 0 {
		<-ctx.Done()
		return nil
	}

	files := make([]string, 0, len(luns))
	for fname := range luns {
		files = append(files, fname)
	}
	sort.Strings(files)

	return firmware.Watch(ctx, files, func(fname string) {
		msg.Infof("firmware %q changed", fname)
		srv.reload(ctx, msg, luns[fname])
	})
}

// firmwareLUNs returns the boards using each firmware file.
func firmwareLUNs(cfgs carrier.Configs, dirs []string, msg msgstream) map[string][]int {
	luns := make(map[string][]int)
	for _, lun := range cfgs.LUNs() {
		name := cfgs[lun].Firmware
		fname, err := firmware.Find(name, dirs...)
		if err != nil {
			msg.Errorf("could not find firmware of card lun %d: %+v", lun, err)
			continue
		}
		fname, err = filepath.Abs(fname)
		if err != nil {
			msg.Errorf("could not resolve firmware of card lun %d: %+v", lun, err)
			continue
		}
		luns[fname] = append(luns[fname], lun)
	}
	return luns
}

func statusFrame(sts []carrier.Status) []byte {
	o := new(bytes.Buffer)
	for _, st := range sts {
		fmt.Fprintf(o, "lun=%d state=%s outcome=%v fw=%q size=%d",
			st.LUN, st.State, st.Outcome, st.Firmware, st.Size,
		)
		if st.State == "booted" {
			fmt.Fprintf(o, " %v", st.Function)
		}
		o.WriteString("\n")
	}
	return o.Bytes()
}
