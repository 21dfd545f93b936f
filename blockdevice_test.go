package main

import (
	"os"
	"path/filepath"
	"testing"
)

func makeTestImageFile(t *testing.T, sectors int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	buf := make([]byte, sectors*512)
	if err := os.WriteFile(path, buf, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBlockDeviceOpenClose(t *testing.T) {
	path := makeTestImageFile(t, 100)
	var dev BlockDevice
	if dev.Mounted() {
		t.Fatal("unopened device should not be mounted")
	}
	if err := dev.Open(path); err != nil {
		t.Fatal(err)
	}
	if !dev.Mounted() {
		t.Fatal("device should be mounted after Open")
	}
	if dev.sectors != 100 {
		t.Errorf("sectors = %d, want 100", dev.sectors)
	}
	if err := dev.Close(); err != nil {
		t.Fatal(err)
	}
	if dev.Mounted() {
		t.Error("device should not be mounted after Close")
	}
}

func TestBlockDeviceOpenEmptyPathIsNoop(t *testing.T) {
	var dev BlockDevice
	if err := dev.Open(""); err != nil {
		t.Fatal(err)
	}
	if dev.Mounted() {
		t.Error("Open(\"\") should leave the slot unmounted")
	}
}

func TestBlockDeviceReadWriteChunk(t *testing.T) {
	path := makeTestImageFile(t, 4)
	var dev BlockDevice
	if err := dev.Open(path); err != nil {
		t.Fatal(err)
	}
	defer dev.Close()

	payload := make([]byte, 512)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := dev.Seek(1); err != nil {
		t.Fatal(err)
	}
	if err := dev.WriteChunk(payload); err != nil {
		t.Fatal(err)
	}
	if err := dev.Seek(1); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 512)
	if err := dev.ReadChunk(got); err != nil {
		t.Fatal(err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("chunk readback mismatch at byte %d", i)
		}
	}
}

func TestBlockDeviceSenseLifecycle(t *testing.T) {
	var dev BlockDevice
	dev.setError(ErrorInvAddr, true)
	if dev.sense != ErrorInvAddr || !dev.reportLBA {
		t.Error("setError didn't record sense/reportLBA")
	}
	dev.clearSense()
	if dev.sense != ErrorOK || dev.reportLBA {
		t.Error("clearSense didn't reset sense/reportLBA")
	}
}
