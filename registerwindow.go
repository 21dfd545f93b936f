package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// RegisterWindow is the fabric-facing register page: a small, page-masked
// memory window the interrupt pump mmaps once at startup and reads/writes
// for the lifetime of the process. It generalizes the teacher's
// page-masked I/O region lookup (machine_bus.go) down to the few
// registers this host actually owns, instead of a multi-megabyte
// CPU/video bus.
//
// Layout mirrors acsi_init's offset arithmetic: the ACSI status/command
// register sits at a fixed offset into the shared parameter page, and the
// DMA ping-pong buffer follows immediately after it.
type RegisterWindow struct {
	data []byte // mmap'd page, or a plain slice in test/offline mode
	fd   int    // backing /dev/uioN descriptor, -1 when not backed by real hardware
}

const (
	registerWindowSize = 0x4000 + 0x800 + 1024 + 4 + 16 // acsi status/cmd reg + 2x512B DMA buffer + floppy status word + floppy track window
	acsiRegOffset       = 0x4000
	acsiIOBufOffset     = acsiRegOffset + 0x800
	floppyStatusOffset  = acsiIOBufOffset + 1024
	floppyWindowOffset  = floppyStatusOffset + 4
	floppyWindowSize    = 16
)

// OpenRegisterWindow mmaps the given UIO device's register resource. Pass
// an empty path to run against an in-memory window instead (used by tests
// and by the interrupt pump's offline/simulation mode).
func OpenRegisterWindow(uioPath string) (*RegisterWindow, error) {
	if uioPath == "" {
		return &RegisterWindow{data: make([]byte, registerWindowSize), fd: -1}, nil
	}
	fd, err := unix.Open(uioPath, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("registerwindow: open %s: %w", uioPath, err)
	}
	mem, err := unix.Mmap(fd, 0, registerWindowSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("registerwindow: mmap %s: %w", uioPath, err)
	}
	return &RegisterWindow{data: mem, fd: fd}, nil
}

// Close releases the mmap and the backing descriptor, if any.
func (w *RegisterWindow) Close() error {
	if w.fd < 0 {
		return nil
	}
	if err := unix.Munmap(w.data); err != nil {
		unix.Close(w.fd)
		return err
	}
	return unix.Close(w.fd)
}

// AwaitInterrupt blocks until the UIO device signals an interrupt, returning
// the interrupt count. In offline mode (no backing fd) it never returns;
// callers are expected to select on a context instead.
func (w *RegisterWindow) AwaitInterrupt() (uint32, error) {
	if w.fd < 0 {
		select {}
	}
	var buf [4]byte
	n, err := unix.Read(w.fd, buf[:])
	if err != nil {
		return 0, fmt.Errorf("registerwindow: read irq count: %w", err)
	}
	if n != 4 {
		return 0, fmt.Errorf("registerwindow: short irq count read (%d bytes)", n)
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// Rearm re-enables the UIO interrupt line for the next wakeup.
func (w *RegisterWindow) Rearm() error {
	if w.fd < 0 {
		return nil
	}
	buf := [4]byte{1, 0, 0, 0}
	_, err := unix.Write(w.fd, buf[:])
	return err
}

func (w *RegisterWindow) readU32(off int) uint32 {
	return uint32(w.data[off]) | uint32(w.data[off+1])<<8 | uint32(w.data[off+2])<<16 | uint32(w.data[off+3])<<24
}

func (w *RegisterWindow) writeU32(off int, v uint32) {
	w.data[off] = byte(v)
	w.data[off+1] = byte(v >> 8)
	w.data[off+2] = byte(v >> 16)
	w.data[off+3] = byte(v >> 24)
}

// AcsiReg reads the fabric's acsireg value: low byte is the data byte (or
// status/command word), the next bit is the A1 framing flag.
func (w *RegisterWindow) AcsiReg() uint32 { return w.readU32(acsiRegOffset) }

// SetAcsiReg writes a status/command word back to the fabric.
func (w *RegisterWindow) SetAcsiReg(v uint32) { w.writeU32(acsiRegOffset, v) }

// IOBuf returns the 1KB ping-pong DMA buffer backing ACSI/GEMDOS transfers.
func (w *RegisterWindow) IOBuf() []byte {
	return w.data[acsiIOBufOffset : acsiIOBufOffset+1024]
}

// FloppyStatus reads the fabric's floppy status word: read/write-active
// bits, the 9-bit stream position, the 8-bit track (side is bit 0), and
// the drive select bit, the input floppy_interrupt decodes in floppy.c.
func (w *RegisterWindow) FloppyStatus() uint32 { return w.readU32(floppyStatusOffset) }

// SetFloppyStatus writes the floppy status word. Used by tests and by any
// software model standing in for the fabric's floppy controller.
func (w *RegisterWindow) SetFloppyStatus(v uint32) { w.writeU32(floppyStatusOffset, v) }

// FloppyWindow returns the 16-byte track window the fabric stages its
// next MFM bytes through and writes captured bytes back into.
func (w *RegisterWindow) FloppyWindow() []byte {
	return w.data[floppyWindowOffset : floppyWindowOffset+floppyWindowSize]
}
