package reactor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setsockoptXDPUmemReg and getsockoptXDPMmapOffsets fill the gap left by
// golang.org/x/sys/unix, which defines the XDPUmemReg/XDPMmapOffsets types
// but does not export Setsockopt/Getsockopt wrappers for them (unlike its
// other XDP-adjacent types). They use the same raw setsockopt/getsockopt
// syscalls the generated wrappers elsewhere in that package use.

func setsockoptXDPUmemReg(fd, level, opt int, reg *unix.XDPUmemReg) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_SETSOCKOPT,
		uintptr(fd), uintptr(level), uintptr(opt),
		uintptr(unsafe.Pointer(reg)), unsafe.Sizeof(*reg), 0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}

func getsockoptXDPMmapOffsets(fd, level, opt int) (*unix.XDPMmapOffsets, error) {
	var off unix.XDPMmapOffsets
	vallen := unsafe.Sizeof(off)
	_, _, errno := unix.Syscall6(
		unix.SYS_GETSOCKOPT,
		uintptr(fd), uintptr(level), uintptr(opt),
		uintptr(unsafe.Pointer(&off)), uintptr(unsafe.Pointer(&vallen)), 0,
	)
	if errno != 0 {
		return nil, errno
	}
	return &off, nil
}
