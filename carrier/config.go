// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package carrier

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
	"github.com/go-lpc/svec/firmware"
)

// MaxDevices is the maximum number of carrier boards handled by a Driver.
const MaxDevices = 32

// BoardConfig is the configuration of a carrier board.
type BoardConfig struct {
	LUN      int    // logical unit number of the board
	VMEBase1 uint32 // VME base address of the CR/CSR space
	VMEBase2 uint32 // VME A32 base address of function 0
	Vector   uint8  // interrupt vector
	Level    uint8  // interrupt level
	Firmware string // firmware image name
}

// Function returns the function 0 description of the board.
func (cfg BoardConfig) Function() Function {
	return Function{
		Base:   cfg.VMEBase2,
		Vector: cfg.Vector,
		Level:  cfg.Level,
	}
}

// Description returns a one-line description of the board.
func (cfg BoardConfig) Description() string {
	return fmt.Sprintf(
		"SVEC at VME-A32 0x%08x - 0x%08x irqv %d irql %d",
		cfg.VMEBase1, cfg.VMEBase2, cfg.Vector, cfg.Level,
	)
}

func (cfg BoardConfig) validate() error {
	if cfg.LUN < 0 || cfg.LUN >= MaxDevices {
		return fmt.Errorf("svec: card lun %d out of range [0..%d]", cfg.LUN, MaxDevices-1)
	}
	if cfg.Level > 7 {
		return fmt.Errorf("svec: card lun %d: invalid irq level %d", cfg.LUN, cfg.Level)
	}
	if cfg.Firmware == "" {
		return fmt.Errorf("svec: card lun %d: no firmware", cfg.LUN)
	}
	return nil
}

// Configs maps logical unit numbers to board configurations.
type Configs map[int]BoardConfig

// LUNs returns the sorted list of logical unit numbers.
func (cfgs Configs) LUNs() []int {
	luns := make([]int, 0, len(cfgs))
	for lun := range cfgs {
		luns = append(luns, lun)
	}
	sort.Ints(luns)
	return luns
}

// Add adds a board configuration, checking its consistency.
func (cfgs Configs) Add(cfg BoardConfig) error {
	if cfg.Firmware == "" {
		cfg.Firmware = firmware.Default
	}
	err := cfg.validate()
	if err != nil {
		return err
	}
	if _, dup := cfgs[cfg.LUN]; dup {
		return fmt.Errorf("svec: duplicate card lun %d", cfg.LUN)
	}
	cfgs[cfg.LUN] = cfg
	return nil
}

const sectionPrefix = "svec."

// ReadConfig reads the board configurations from an INI file.
//
// Each board is described by a [svec.N] section:
//
//	fw_name = fmc/svec-golden.bin
//
//	[svec.0]
//	lun      = 0
//	vmebase1 = 0x80000
//	vmebase2 = 0x39000000
//	vector   = 0x86
//	level    = 2
//
// lun defaults to N. fw_name defaults to the value of the default
// section, or to firmware.Default.
// vector and level are mandatory.
func ReadConfig(fname string) (Configs, error) {
	f, err := ini.Load(fname)
	if err != nil {
		return nil, fmt.Errorf("svec: could not load config file %q: %w", fname, err)
	}
	cfgs, err := parseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("svec: could not parse config file %q: %w", fname, err)
	}
	return cfgs, nil
}

// ParseConfig parses board configurations from INI data.
func ParseConfig(data []byte) (Configs, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("svec: could not load config: %w", err)
	}
	return parseConfig(f)
}

func parseConfig(f *ini.File) (Configs, error) {
	fw := f.Section(ini.DefaultSection).Key("fw_name").MustString(firmware.Default)

	cfgs := make(Configs)
	for _, sec := range f.Sections() {
		name := sec.Name()
		if !strings.HasPrefix(name, sectionPrefix) {
			continue
		}
		ndev, err := strconv.Atoi(strings.TrimPrefix(name, sectionPrefix))
		if err != nil {
			return nil, fmt.Errorf("invalid section name %q: %w", name, err)
		}

		cfg := BoardConfig{
			LUN:      ndev,
			Firmware: sec.Key("fw_name").MustString(fw),
		}

		if sec.HasKey("lun") {
			cfg.LUN, err = sec.Key("lun").Int()
			if err != nil {
				return nil, fmt.Errorf("section %q: invalid lun: %w", name, err)
			}
		}

		for _, v := range []struct {
			key  string
			ptr  interface{}
			bits int
		}{
			{"vmebase1", &cfg.VMEBase1, 32},
			{"vmebase2", &cfg.VMEBase2, 32},
			{"vector", &cfg.Vector, 8},
			{"level", &cfg.Level, 8},
		} {
			if !sec.HasKey(v.key) {
				return nil, fmt.Errorf("section %q: missing key %q", name, v.key)
			}
			u, err := strconv.ParseUint(sec.Key(v.key).String(), 0, v.bits)
			if err != nil {
				return nil, fmt.Errorf("section %q: invalid %s: %w", name, v.key, err)
			}
			switch ptr := v.ptr.(type) {
			case *uint32:
				*ptr = uint32(u)
			case *uint8:
				*ptr = uint8(u)
			}
		}

		err = cfgs.Add(cfg)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", name, err)
		}
	}

	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no [svec.N] section")
	}

	return cfgs, nil
}
