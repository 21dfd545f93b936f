package main

import "testing"

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.MemSize != 4*1024*1024 {
		t.Errorf("MemSize = %d, want 4MB", c.MemSize)
	}
	if c.FloppyInterleave != 1 {
		t.Errorf("FloppyInterleave = %d, want 1", c.FloppyInterleave)
	}
	if c.FloppySkew != 0 {
		t.Errorf("FloppySkew = %d, want 0", c.FloppySkew)
	}
	if c.GEMDOSRoot != "" {
		t.Error("GEMDOSRoot should default to disabled (empty)")
	}
	for i, img := range c.ACSIImage {
		if img != "" {
			t.Errorf("ACSIImage[%d] should default to unmounted, got %q", i, img)
		}
	}
}
