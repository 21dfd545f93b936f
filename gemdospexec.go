package main

import (
	"fmt"
	"os"
)

// GEMDOS program header: 28 bytes (magic, tlen, dlen, blen, slen,
// reserved, prgflags, absflag), followed immediately by the text/data
// segments and then the relocation table.
type prgHeader struct {
	magic    uint16
	tlen     uint32
	dlen     uint32
	blen     uint32
	slen     uint32
	reserved uint32
	prgflags uint32
	absflag  uint16
}

func parsePrgHeader(b []byte) (prgHeader, error) {
	if len(b) < 28 {
		return prgHeader{}, fmt.Errorf("gemdospexec: truncated header")
	}
	h := prgHeader{
		magic:    readU16(b[0:]),
		tlen:     readU32(b[2:]),
		dlen:     readU32(b[6:]),
		blen:     readU32(b[10:]),
		slen:     readU32(b[14:]),
		reserved: readU32(b[18:]),
		prgflags: readU32(b[22:]),
		absflag:  readU16(b[26:]),
	}
	if h.magic != 0x601a {
		return h, fmt.Errorf("gemdospexec: bad program header magic %#x", h.magic)
	}
	return h, nil
}

// relocate walks a GEMDOS relocation table and adds base to every long
// word it names within image, in place. A table byte of 1 is not itself a
// relocation fixup: it means "skip ahead 254 bytes and re-read the next
// byte", the one fencepost case a naive decoder gets wrong.
func relocate(image []byte, table []byte, base uint32) {
	if len(table) < 4 {
		return
	}
	offset := readU32(table[0:])
	table = table[4:]
	for {
		if int(offset)+4 > len(image) {
			return
		}
		v := readU32(image[offset:])
		writeU32(image[offset:], v+base)
		if len(table) == 0 {
			return
		}
		for len(table) > 0 && table[0] == 1 {
			offset += 254
			table = table[1:]
		}
		if len(table) == 0 {
			return
		}
		step := uint32(table[0])
		table = table[1:]
		if step == 0 {
			return
		}
		offset += step
	}
}

// basepageSize is the fixed TOS basepage header length: p_lowtpa/p_hitpa
// followed by the text/data/bss base+length fields this host fills in,
// then the rest of the fields the fabric's own Pexec(5) already
// initialized and left untouched here.
const basepageSize = 256

// pexecAction builds the ACTION_GEMDOS/ACTION_MODSTACK wire payload for a
// nested Pexec call, the [code][opcode][arg-byte-count][args] schema
// printString established for carrying a GEMDOS call description to the
// fabric. args is the opcode's own stack layout (mode, then its three
// pointer arguments), mirroring gemdos.c's raw action+4.. fields for the
// Pexec(5) and ACTION_MODSTACK Pexec(4) sub-calls.
func pexecAction(code, mode uint16, ptr1, ptr2, ptr3 uint32) []byte {
	action := make([]byte, 20)
	writeU16(action, code)
	writeU16(action[2:], 0x4b) // Pexec
	writeU16(action[4:], 14)   // arg bytes: mode + 3 pointers
	writeU16(action[6:], mode)
	writeU32(action[8:], ptr1)
	writeU32(action[12:], ptr2)
	writeU32(action[16:], ptr3)
	return action
}

// gemdosSubCall issues a nested GEMDOS call against the fabric and
// returns its 32-bit result, mirroring the gemdos_cond_wait/acsi_send_reply
// pair every ACTION_GEMDOS use in gemdos.c drives by hand. ok is false if
// the fabric never answered in time.
func (g *GemdosRedirector) gemdosSubCall(action []byte) (result int32, ok bool) {
	if !g.awaitAction() {
		return 0, false
	}
	g.transport.sendReply(action)
	if !g.awaitResult() {
		return 0, false
	}
	g.transport.reg.SetAcsiReg(uint32(StatusOK))
	return int32(readU32(g.transport.reg.IOBuf()[0:4])), true
}

// pexec implements GEMDOS opcode 0x4b. Modes 0 and 3 share the full
// load/relocate/BSS-zero/stream sequence: the basepage itself is always
// allocated fabric-side (a nested Pexec(5) call, since only TOS's own
// memory manager knows what's free), and this host builds the program
// image into it and streams it over. Mode 3 then hands the basepage
// pointer straight back; mode 0 ("load and run") instead asks the fabric
// to re-enter Pexec(4) against that basepage via ACTION_MODSTACK. Every
// other mode falls back to the fabric's own TOS code, which already knows
// how to drive Pexec against the files this redirector serves
// transparently through Fopen/Fread. There's no "not a managed drive"
// branch here the way gemdos.c's path_lookup has one: the ACSI transport
// only ever routes a command to this redirector once it's decided the
// call targets the redirected drive.
func (g *GemdosRedirector) pexec(mode uint16, pname, pcmdline, penv uint32) {
	if mode != 0 && mode != 3 {
		g.fallback()
		return
	}
	name := g.readString(pname)
	full, err := g.fs.hostPath(name)
	if err != nil {
		g.gemdosReturn(ePTHNF)
		return
	}
	if info, err := os.Stat(full); err != nil || info.IsDir() {
		g.gemdosReturn(eFILNF)
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		g.gemdosReturn(errnoToGemdos(err))
		return
	}
	hdr, err := parsePrgHeader(data)
	if err != nil {
		g.gemdosReturn(eFILNF)
		return
	}

	basepage, ok := g.gemdosSubCall(pexecAction(actionGemdos, 5, 0, pcmdline, penv))
	if !ok {
		return
	}

	header := g.readMemory(uint32(basepage), basepageSize)
	if len(header) < basepageSize {
		g.gemdosReturn(eINTRN)
		return
	}

	textData := data[28 : 28+hdr.tlen+hdr.dlen]
	length := uint32(basepageSize) + hdr.tlen + hdr.dlen + hdr.blen
	image := make([]byte, length)
	copy(image, header)
	copy(image[basepageSize:], textData)

	progStart := uint32(basepage) + basepageSize
	writeU32(image[8:], progStart)             // program section address
	writeU32(image[12:], hdr.tlen)              // program section size
	writeU32(image[16:], progStart+hdr.tlen)    // data section address
	writeU32(image[20:], hdr.dlen)              // data section size
	writeU32(image[24:], progStart+hdr.tlen+hdr.dlen) // BSS section address
	writeU32(image[28:], hdr.blen)               // BSS section size

	if hdr.absflag == 0 {
		relocStart := 28 + hdr.tlen + hdr.dlen + hdr.slen
		var table []byte
		if uint32(len(data)) > relocStart {
			table = data[relocStart:]
		}
		relocate(image[basepageSize:], table, progStart)
	}
	// BSS is already zero: image was freshly allocated by make().

	g.writeMemory(image, uint32(basepage))

	if mode == 3 {
		g.gemdosReturn(basepage)
		return
	}

	// default DTA, mirroring Pexec's addr_dta = pbasepage+0x80 for mode 0
	g.fs.dta = uint32(basepage) + 0x80
	if !g.awaitAction() {
		return
	}
	g.transport.sendReply(pexecAction(actionModstack, 4, 0, uint32(basepage), 0))
}
