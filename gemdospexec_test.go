package main

import "testing"

func makeTestPrgHeader(tlen, dlen, blen, slen uint32) []byte {
	b := make([]byte, 28)
	writeU16(b[0:], 0x601a)
	writeU32(b[2:], tlen)
	writeU32(b[6:], dlen)
	writeU32(b[10:], blen)
	writeU32(b[14:], slen)
	return b
}

func TestParsePrgHeaderValid(t *testing.T) {
	b := makeTestPrgHeader(100, 20, 8, 0)
	hdr, err := parsePrgHeader(b)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.tlen != 100 || hdr.dlen != 20 || hdr.blen != 8 {
		t.Errorf("unexpected header fields: %+v", hdr)
	}
}

func TestParsePrgHeaderTruncated(t *testing.T) {
	if _, err := parsePrgHeader(make([]byte, 10)); err == nil {
		t.Error("expected error on truncated header")
	}
}

func TestParsePrgHeaderBadMagic(t *testing.T) {
	b := makeTestPrgHeader(1, 1, 1, 0)
	writeU16(b[0:], 0x1234)
	if _, err := parsePrgHeader(b); err == nil {
		t.Error("expected error on bad magic")
	}
}

func TestRelocateSingleFixup(t *testing.T) {
	image := make([]byte, 16)
	writeU32(image[4:], 0x1000)

	table := make([]byte, 4)
	writeU32(table[0:], 4)

	relocate(image, table, 0x2000)

	if got := readU32(image[4:]); got != 0x3000 {
		t.Errorf("relocated long = %#x, want 0x3000", got)
	}
}

func TestRelocateSkip254Fencepost(t *testing.T) {
	image := make([]byte, 512)
	writeU32(image[2:], 0x100)
	writeU32(image[2+254+4:], 0x200)

	table := []byte{}
	head := make([]byte, 4)
	writeU32(head, 2)
	table = append(table, head...)
	table = append(table, 1)   // skip 254
	table = append(table, 4)   // then step 4 more

	relocate(image, table, 0x1000)

	if got := readU32(image[2:]); got != 0x1100 {
		t.Errorf("first fixup = %#x, want 0x1100", got)
	}
	if got := readU32(image[2+254+4:]); got != 0x1200 {
		t.Errorf("second fixup after 254-skip = %#x, want 0x1200", got)
	}
}

func TestRelocateStopsAtZeroStep(t *testing.T) {
	image := make([]byte, 16)
	writeU32(image[0:], 0x10)
	writeU32(image[8:], 0x20)

	table := make([]byte, 4)
	writeU32(table[0:], 0)
	table = append(table, 0)

	relocate(image, table, 0x1000)

	if got := readU32(image[0:]); got != 0x1010 {
		t.Errorf("first long = %#x, want 0x1010", got)
	}
	if got := readU32(image[8:]); got != 0x20 {
		t.Errorf("second long should be untouched, got %#x", got)
	}
}

func TestRelocateEmptyTableIsNoop(t *testing.T) {
	image := make([]byte, 8)
	relocate(image, nil, 0x1000)
	for _, b := range image {
		if b != 0 {
			t.Error("relocate with a too-short table should not touch the image")
		}
	}
}
