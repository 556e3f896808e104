// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register map of the SVEC CR/CSR space.
package regs // import "github.com/go-lpc/svec/carrier/internal/regs"

// CR/CSR window.
const (
	CRCSRSize = 0x80000
)

// Bootloader (xloader) block.
const (
	LoaderBase = 0x70000

	LoaderCSR     = LoaderBase + 0x00
	LoaderBTrigR  = LoaderBase + 0x04
	LoaderGPR     = LoaderBase + 0x08
	LoaderIDR     = LoaderBase + 0x0c
	LoaderFIFOR0  = LoaderBase + 0x10
	LoaderFIFOR1  = LoaderBase + 0x14
	LoaderFIFOCSR = LoaderBase + 0x18
)

// Bootloader control/status bits.
const (
	CSRStart = 1 << 0
	CSRDone  = 1 << 1
	CSRError = 1 << 2
	CSRBusy  = 1 << 3
	CSRMSBF  = 1 << 4
	CSRSWRst = 1 << 5
	CSRExit  = 1 << 6
)

// Bootloader FIFO bits.
const (
	FIFOR0XSize = 0x3
	FIFOR0XLast = 1 << 2

	FIFOCSRFull  = 1 << 16
	FIFOCSREmpty = 1 << 17
)

// LoaderID is the content of the identifier register when the bootloader
// is active: "SVEC", read big-endian.
const LoaderID = 0x53564543

// CSR (Cadillac) registers.
// Each logical byte occupies a full 32-bit slot.
const (
	Fun0ADER  = 0x7ff63
	IntEnable = 0x7ff57
	IntLevel  = 0x7ff5b
	IntVector = 0x7ff5f
	WB32Mode  = 0x7ff33
	BitSet    = 0x7fffb
	BitClr    = 0x7fff7

	VMECore = 0x7c
)

// CSR register values.
const (
	WB32 = 1
	WB64 = 0

	ResetCore  = 0x80
	EnableCore = 0x10
)
