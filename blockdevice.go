package main

import (
	"fmt"
	"io"
	"os"
)

// BlockDevice is one of the up to 8 ACSI-addressable removable image
// slots. Mirrors acsi.c's __acsi_disk struct: an open file handle, its
// sector count, the current LBA cursor and pending sense data.
type BlockDevice struct {
	file      *os.File
	path      string
	sectors   uint32
	lba       uint32
	sense     Sense
	reportLBA bool
}

// Open mounts an image file onto this slot. An empty path leaves the slot
// unmounted (fd==nil), matching acsi.c's openimg(id, NULL) no-op.
func (b *BlockDevice) Open(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("blockdevice: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("blockdevice: stat %s: %w", path, err)
	}
	b.file = f
	b.path = path
	b.sectors = uint32(info.Size() / 512)
	return nil
}

// Close unmounts the current image, if any.
func (b *BlockDevice) Close() error {
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	b.path = ""
	b.sectors = 0
	return err
}

// Mounted reports whether a slot currently has an image open.
func (b *BlockDevice) Mounted() bool { return b.file != nil }

func (b *BlockDevice) clearSense() {
	b.sense = ErrorOK
	b.reportLBA = false
}

func (b *BlockDevice) setError(err Sense, reportLBA bool) {
	b.sense = err
	b.reportLBA = reportLBA
}

// Seek positions the image file at the given sector, mirroring the
// original's lseek(fd, lba*512, SEEK_SET) ahead of a chunked transfer.
func (b *BlockDevice) Seek(sector uint32) error {
	_, err := b.file.Seek(int64(sector)*512, 0)
	return err
}

// ReadChunk reads len(buf) bytes from the current file position, advancing
// it, the Go equivalent of a raw read(fd, buf, n) against the already
// positioned descriptor.
func (b *BlockDevice) ReadChunk(buf []byte) error {
	_, err := io.ReadFull(b.file, buf)
	return err
}

// WriteChunk writes buf at the current file position and advances it.
func (b *BlockDevice) WriteChunk(buf []byte) error {
	_, err := b.file.Write(buf)
	return err
}
