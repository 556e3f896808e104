// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vme

// Constants from <linux/vme.h> and <uapi/linux/vme_user.h>.

const (
	asA16   = 0x1
	asA24   = 0x2
	asA32   = 0x4
	asA64   = 0x8
	asCRCSR = 0x10

	cySCT   = 0x1
	cyBLT   = 0x2
	cyMBLT  = 0x4
	cySuper = 0x1000
	cyUser  = 0x2000
	cyProg  = 0x4000
	cyData  = 0x8000

	dwD8  = 0x1
	dwD16 = 0x2
	dwD32 = 0x4
	dwD64 = 0x8
)

const (
	// VME_SET_MASTER = _IOW(VME_IOC_MAGIC, 0x3, struct vme_master)
	ioctlSetMaster = 0x4020ae03

	szMaster = 32 // sizeof(struct vme_master), packed
)

// master is the struct vme_master of the vme_user driver:
//
//	struct vme_master {
//		__u32 enable;
//		__u64 vme_addr;
//		__u64 size;
//		__u32 aspace;
//		__u32 cycle;
//		__u32 dwidth;
//	} __packed;
type master struct {
	enable uint32
	addr   uint64
	size   uint64
	aspace uint32
	cycle  uint32
	dwidth uint32
}

func dwidthOf(dw DataWidth) uint32 {
	switch dw {
	case D8:
		return dwD8
	case D16:
		return dwD16
	case D32:
		return dwD32
	case D64:
		return dwD64
	}
	return 0
}

func masterFrom(m Mapping) master {
	am := amTable[m.AM]
	return master{
		enable: 1,
		addr:   uint64(m.Addr),
		size:   uint64(m.Size),
		aspace: am.aspace,
		cycle:  am.cycle,
		dwidth: dwidthOf(m.Width),
	}
}
