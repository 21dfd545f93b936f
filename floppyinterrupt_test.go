package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

func newTestFDC(t *testing.T) (*FloppyController, *FloppyEngine) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.st")
	writeTestSTImage(t, path, 0)

	e := NewFloppyEngine(false, 0, 1)
	if err := e.Insert(0, path, false); err != nil {
		t.Fatal(err)
	}
	return NewFloppyController(e, false), e
}

func newTestRegisterWindow() *RegisterWindow {
	return &RegisterWindow{data: make([]byte, registerWindowSize), fd: -1}
}

// floppyStatusWord packs the bit layout floppy_interrupt decodes: read and
// write-active flags, a 9-bit stream address, the 8-bit track (side is
// bit 0), and the drive select bit.
func floppyStatusWord(readActive, writeActive bool, addr, track, drive int) uint32 {
	var v uint32
	if readActive {
		v |= 1 << 31
	}
	if writeActive {
		v |= 1 << 30
	}
	v |= uint32(addr&0x1ff) << 21
	v |= uint32(track&0xff) << 13
	v |= uint32(drive&1) << 12
	return v
}

func TestFloppyControllerStagesReadAhead(t *testing.T) {
	c, e := newTestFDC(t)
	reg := newTestRegisterWindow()
	want := e.TrackWindow(0, 0, 0)[16:32]

	reg.SetFloppyStatus(floppyStatusWord(true, false, 0, 0, 0))
	c.Service(reg)

	got := reg.FloppyWindow()[:16]
	if !bytes.Equal(got, want) {
		t.Errorf("staged window = %x, want %x", got, want)
	}
}

func TestFloppyControllerWrapsAtTrackEnd(t *testing.T) {
	c, e := newTestFDC(t)
	reg := newTestRegisterWindow()
	tw := e.TrackWindow(0, 0, 0)

	// addr=389 -> pos=6240, the last in-bounds slot: 10 bytes, no wrap.
	reg.SetFloppyStatus(floppyStatusWord(true, false, 389, 0, 0))
	c.Service(reg)
	if !bytes.Equal(reg.FloppyWindow()[:10], tw[6240:6250]) {
		t.Errorf("last-slot staged window = %x, want %x", reg.FloppyWindow()[:10], tw[6240:6250])
	}

	// addr=390 -> pos=6256, wraps to 0: 16 bytes from the start of the track.
	reg.SetFloppyStatus(floppyStatusWord(true, false, 390, 0, 0))
	c.Service(reg)
	if !bytes.Equal(reg.FloppyWindow()[:16], tw[0:16]) {
		t.Errorf("wrapped staged window = %x, want %x", reg.FloppyWindow()[:16], tw[0:16])
	}
}

func TestFloppyControllerCommitsTwoCyclesLate(t *testing.T) {
	c, e := newTestFDC(t)
	reg := newTestRegisterWindow()
	tw := e.TrackWindow(0, 0, 0)
	wantCommitted := append([]byte(nil), tw[48:64]...)

	reg.SetFloppyStatus(floppyStatusWord(true, false, 0, 0, 0))
	c.Service(reg)
	reg.SetFloppyStatus(floppyStatusWord(true, false, 1, 0, 0))
	c.Service(reg)
	reg.SetFloppyStatus(floppyStatusWord(true, true, 2, 0, 0))
	c.Service(reg)

	if !bytes.Equal(tw[16:32], wantCommitted) {
		t.Errorf("committed bytes at [16:32] = %x, want %x", tw[16:32], wantCommitted)
	}
}

func TestFloppyControllerSameAddrIsNoOp(t *testing.T) {
	c, _ := newTestFDC(t)
	reg := newTestRegisterWindow()
	reg.SetFloppyStatus(floppyStatusWord(true, false, 5, 0, 0))
	c.Service(reg)

	reg.FloppyWindow()[0] = 0xab
	c.Service(reg) // identical status word, same addr: must not restage
	if reg.FloppyWindow()[0] != 0xab {
		t.Error("repeating the same status word should be a no-op")
	}
}

func TestFloppyControllerDropsOnEmptyDrive(t *testing.T) {
	c := NewFloppyController(NewFloppyEngine(false, 0, 1), false)
	reg := newTestRegisterWindow()
	reg.SetFloppyStatus(floppyStatusWord(true, false, 0, 0, 1))
	c.Service(reg)
	if c.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", c.Dropped())
	}
}

func TestFloppyControllerIgnoresWriteWithoutRead(t *testing.T) {
	c, _ := newTestFDC(t)
	reg := newTestRegisterWindow()
	reg.SetFloppyStatus(floppyStatusWord(false, true, 1, 0, 0))
	c.Service(reg) // write-only cycle: nothing staged, nothing committed, no panic
}
