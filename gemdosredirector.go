package main

import (
	"fmt"
	"os"
	"time"
)

// GEMDOS tunnel sub-operations, carried in byte 1 of ACSI command 0x11.
const (
	opGemdos = 1 // new GEMDOS call
	opAction = 2 // get next action to perform
	opResult = 3 // send result
)

// Action codes the host hands back to the fabric's GEMDOS stub.
const (
	actionFallback = 0 // fall back to TOS code
	actionReturn   = 1 // return from GEMDOS
	actionRdmem    = 2 // read from memory
	actionWrmem    = 3 // write to memory
	actionWrmem0   = 4 // write to memory then return 0
	actionGemdos   = 5 // perform a GEMDOS call
	actionModstack = 6 // modify calling stack and fall back
)

// gemdosActionTimeout bounds how long the redirector waits for the fabric
// to ask for the next action or deliver a result before abandoning the
// call in progress.
const gemdosActionTimeout = 500 * time.Millisecond

// gemdosThreadPoll is the worker's own idle re-check cadence, distinct
// from gemdosActionTimeout: it bounds how long the worker sits between
// checking for shutdown while no call is in flight, not any single
// action's delivery deadline.
const gemdosThreadPoll = 200 * time.Millisecond

// inquiryGemdosDriveData is the 48-byte INQUIRY string for the logical
// GEMDOS drive slot, distinct from a plain block device's string.
var inquiryGemdosDriveData = []byte(
	"\x0a\x00\x01\x00\x1f\x00\x00\x00" +
		"zeST    " +
		"GEMDOS_Drive    " +
		"0100" + "\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00")

type gemdosCall struct {
	opcode uint16
	stack  [16]byte
}

// GemdosRedirector implements the co-located GEMDOS slot's command tunnel:
// a single worker goroutine drains one dispatched GEMDOS opcode at a time,
// driving an action loop (RDMEM/WRMEM/RETURN/FALLBACK/GEMDOS/MODSTACK)
// against the fabric over the same ACSI register window. Grounded on
// gemdos.c's gemdos_thread/gemdos_acsi_cmd pair.
type GemdosRedirector struct {
	transport *ACSITransport
	fs        *GemdosFS
	metrics   *Metrics
	verbose   bool

	sense Sense

	gemdosDrv  int // drive letter bit (0=A ... 2=C), -1 until driver_init runs
	currentDrv int

	bootImage []byte // boot-sector payload served for the 4-sector "read" command

	newCall    chan gemdosCall
	wantAction chan struct{}
	gotResult  chan struct{}
	quit       chan struct{}

	awaitingStack bool
	pendingOpcode uint16
	stackBuf      [16]byte
}

// NewGemdosRedirector wires a fresh redirector to its ACSI transport and
// filesystem backend. bootImage is the 4-sector payload handed back for
// ACSI read command 8 against this slot (the GEMDOS driver's bootstrap).
func NewGemdosRedirector(transport *ACSITransport, fs *GemdosFS, bootImage []byte, verbose bool) *GemdosRedirector {
	g := &GemdosRedirector{
		transport:  transport,
		fs:         fs,
		bootImage:  bootImage,
		verbose:    verbose,
		gemdosDrv:  -1,
		currentDrv: 2,
		newCall:    make(chan gemdosCall, 1),
		wantAction: make(chan struct{}, 1),
		gotResult:  make(chan struct{}, 1),
		quit:       make(chan struct{}),
	}
	return g
}

// Start launches the worker goroutine. Stop shuts it down.
func (g *GemdosRedirector) Start() { go g.run() }
func (g *GemdosRedirector) Stop()  { close(g.quit) }

func (g *GemdosRedirector) tracef(format string, args ...interface{}) {
	if g.verbose {
		fmt.Fprintf(os.Stderr, "gemdos: "+format+"\n", args...)
	}
}

func (g *GemdosRedirector) run() {
	for {
		select {
		case call := <-g.newCall:
			g.dispatch(call.opcode, call.stack)
		case <-g.quit:
			return
		case <-time.After(gemdosThreadPoll):
			// idle: nothing to do until the next call or shutdown
		}
	}
}

// HandleACSICommand is called by ACSITransport (holding its own mutex)
// whenever an ACSI command lands on the GEMDOS slot.
func (g *GemdosRedirector) HandleACSICommand(cmd []byte) {
	switch cmd[0] {
	case 0:
		g.transport.reg.SetAcsiReg(uint32(StatusOK))
	case 3:
		g.requestSense(cmd)
	case 8:
		g.readBootSector(cmd)
	case 0x11:
		g.handleTunnel(cmd)
	case 0x12:
		g.inquiry(cmd)
	}
}

func (g *GemdosRedirector) requestSense(cmd []byte) {
	length := int(cmd[4])
	if length == 0 {
		length = 4
	}
	data := make([]byte, length)
	data[0] = 0x70
	if len(data) > 13 {
		data[2] = g.sense.senseKey()
		data[7] = 10
		data[12] = g.sense.additionalSenseCode()
		data[13] = g.sense.additionalSenseQualifier()
	}
	g.transport.sendReply(data)
	g.sense = ErrorOK
}

func (g *GemdosRedirector) readBootSector(cmd []byte) {
	lba := uint32(cmd[1])<<16 | uint32(cmd[2])<<8 | uint32(cmd[3])
	n := uint32(cmd[4])
	if lba+n > 4 {
		g.sense = ErrorInvAddr
		g.transport.reg.SetAcsiReg(uint32(StatusError))
		return
	}
	start := int(lba) * 512
	end := start + int(n)*512
	if end > len(g.bootImage) {
		end = len(g.bootImage)
	}
	g.transport.sendReply(g.bootImage[start:end])
}

func (g *GemdosRedirector) inquiry(cmd []byte) {
	alloc := int(cmd[3])<<8 | int(cmd[4])
	if alloc > 48 {
		alloc = 48
	}
	g.transport.sendReply(inquiryGemdosDriveData[:alloc])
}

// needsDataBlock reports whether a GEMDOS opcode's call requires the
// initial 16-byte stack snapshot transfer, mirroring gemdos_acsi_cmd's
// two opcode lists.
func needsDataBlock(opcode uint16) bool {
	switch opcode {
	case 0x0e, 0x1a, 0x36, 0x39, 0x3a, 0x3b, 0x3c, 0x3d, 0x3e, 0x3f, 0x40,
		0x41, 0x42, 0x43, 0x47, 0x4b, 0x4e, 0x56, 0x57, 0xffff:
		return true
	default:
		return false
	}
}

func (g *GemdosRedirector) handleTunnel(cmd []byte) {
	op := cmd[1]
	switch op {
	case opGemdos:
		opcode := uint16(cmd[2])<<8 | uint16(cmd[3])
		switch {
		case opcode == 0x19 || opcode == 0x4f: // Dgetdrv, Fsnext: no data block
			select {
			case g.newCall <- gemdosCall{opcode: opcode}:
			default:
			}
		case needsDataBlock(opcode):
			g.pendingOpcode = opcode
			g.awaitingStack = true
			g.transport.waitData(16)
		default:
			g.tracef("ignored opcode %#x", opcode)
			g.transport.reg.SetAcsiReg(uint32(StatusOK))
		}
	case opAction:
		select {
		case g.wantAction <- struct{}{}:
		default:
		}
	case opResult:
		length := int(cmd[2])<<8 | int(cmd[3])
		g.transport.waitData(length)
	default:
		g.sense = ErrorInvArg
		g.transport.reg.SetAcsiReg(uint32(StatusError))
	}
}

// onHostWriteComplete is invoked by ACSITransport.writeNext (still holding
// the transport mutex) once a 0x11-tagged DMA write finishes: either the
// initial opcode's stack snapshot, or a later OP_RESULT payload.
func (g *GemdosRedirector) onHostWriteComplete() {
	if g.awaitingStack {
		g.awaitingStack = false
		copy(g.stackBuf[:], g.transport.reg.IOBuf()[0:16])
		select {
		case g.newCall <- gemdosCall{opcode: g.pendingOpcode, stack: g.stackBuf}:
		default:
		}
		return
	}
	select {
	case g.gotResult <- struct{}{}:
	default:
	}
}

// --- action-loop primitives, called from the worker goroutine only ---

func (g *GemdosRedirector) awaitAction() bool {
	select {
	case <-g.wantAction:
		return true
	case <-time.After(gemdosActionTimeout):
		g.tracef("awaitAction timed out")
		return false
	}
}

func (g *GemdosRedirector) awaitResult() bool {
	select {
	case <-g.gotResult:
		return true
	case <-time.After(gemdosActionTimeout):
		g.tracef("awaitResult timed out")
		return false
	}
}

// readMemory reads nbytes from fabric memory at addr. nbytes==0 means
// "read until NUL", mirroring gemdos_read_string.
func (g *GemdosRedirector) readMemory(addr uint32, nbytes uint16) []byte {
	if !g.awaitAction() {
		return nil
	}
	action := make([]byte, 16)
	writeU16(action, actionRdmem)
	writeU32(action[2:], addr)
	writeU16(action[6:], nbytes)
	g.transport.sendReply(action)
	if !g.awaitResult() {
		return nil
	}
	g.transport.reg.SetAcsiReg(uint32(StatusOK))
	buf := g.transport.reg.IOBuf()[0:512]
	if nbytes == 0 {
		n := 0
		for n < len(buf) && buf[n] != 0 {
			n++
		}
		out := make([]byte, n)
		copy(out, buf[:n])
		return out
	}
	out := make([]byte, nbytes)
	copy(out, buf[:nbytes])
	return out
}

func (g *GemdosRedirector) readString(addr uint32) string {
	return string(g.readMemory(addr, 0))
}

func (g *GemdosRedirector) readLong(addr uint32) uint32 {
	b := g.readMemory(addr, 4)
	if len(b) < 4 {
		return 0
	}
	return readU32(b)
}

func (g *GemdosRedirector) writeMemoryGeneric(buf []byte, addr uint32, ret0 bool) {
	if !g.awaitAction() {
		return
	}
	action := make([]byte, 8+len(buf))
	code := uint16(actionWrmem)
	if ret0 {
		code = actionWrmem0
	}
	writeU16(action, code)
	writeU32(action[2:], addr)
	writeU16(action[6:], uint16(len(buf)))
	copy(action[8:], buf)
	n := (8 + len(buf) + 15) &^ 15
	padded := make([]byte, n)
	copy(padded, action)
	g.transport.sendReply(padded)
}

func (g *GemdosRedirector) writeMemory(buf []byte, addr uint32) { g.writeMemoryGeneric(buf, addr, false) }

func (g *GemdosRedirector) writeMemory0(buf []byte, addr uint32) { g.writeMemoryGeneric(buf, addr, true) }

func (g *GemdosRedirector) writeLong(addr uint32, val uint32) {
	buf := make([]byte, 4)
	writeU32(buf, val)
	g.writeMemory(buf, addr)
}

// gemdosCallStub asks the fabric to perform a real GEMDOS call on the
// host's behalf (used for Cconws-style console output during driver
// install), mirroring gemdos_printstr's ACTION_GEMDOS use.
//
// The string has no home in fabric memory yet, so it is deposited first
// (a WRMEM0 round trip into the resident block's scratch area, the same
// scratchAddr driveInit reserves below its own code) and only then is
// Cconws invoked against that now-valid guest address. Collapsing this
// into a single action, as an earlier draft did by reusing the action
// buffer's own host-side byte offset as if it were a guest pointer,
// confuses the two address spaces; the fabric stub has no way to resolve
// an offset into a buffer it was never given a base address for.
func (g *GemdosRedirector) printString(scratchAddr uint32, s string) int32 {
	msg := append([]byte(s), '\r', '\n', 0)
	g.writeMemory0(msg, scratchAddr)

	if !g.awaitAction() {
		return -1
	}
	action := make([]byte, 10)
	writeU16(action, actionGemdos)
	writeU16(action[2:], 6) // Cconws
	writeU16(action[4:], 4) // one 4-byte string-pointer argument
	writeU32(action[6:], scratchAddr)
	g.transport.sendReply(action)
	if !g.awaitResult() {
		return -1
	}
	g.transport.reg.SetAcsiReg(uint32(StatusOK))
	return int32(readU32(g.transport.reg.IOBuf()[0:4]))
}

func (g *GemdosRedirector) fallback() {
	action := make([]byte, 16)
	writeU16(action, actionFallback)
	if !g.awaitAction() {
		return
	}
	g.transport.sendReply(action)
}

func (g *GemdosRedirector) gemdosReturn(val int32) {
	action := make([]byte, 16)
	writeU16(action, actionReturn)
	writeU32(action[2:], uint32(val))
	if !g.awaitAction() {
		return
	}
	g.transport.sendReply(action)
}

func (g *GemdosRedirector) noActionRequired() { g.transport.reg.SetAcsiReg(uint32(StatusOK)) }
func (g *GemdosRedirector) actionRequired()    { g.transport.reg.SetAcsiReg(uint32(StatusError)) }

// dispatch is the Go analogue of gemdos_thread's opcode switch.
func (g *GemdosRedirector) dispatch(opcode uint16, stack [16]byte) {
	buf := stack[:]
	if g.metrics != nil {
		g.metrics.gemdosCalls.WithLabelValues(fmt.Sprintf("%#x", opcode)).Inc()
	}
	switch opcode {
	case 0x0e: // Dsetdrv
		g.currentDrv = int(readU16(buf[2:]))
		g.noActionRequired()
	case 0x19: // Dgetdrv
		g.noActionRequired()
	case 0x1a: // Fsetdta
		g.fs.Fsetdta(g, readU32(buf[2:]))
	case 0x36: // Dfree
		g.fs.Dfree(g, readU32(buf[2:]), readU16(buf[6:]))
	case 0x39: // Dcreate
		g.fs.Dcreate(g, readU32(buf[2:]))
	case 0x3a: // Ddelete
		g.fs.Ddelete(g, readU32(buf[2:]))
	case 0x3b: // Dsetpath
		g.fs.Dsetpath(g, readU32(buf[2:]))
	case 0x3c: // Fcreate
		g.fs.Fcreate(g, readU32(buf[2:]), readU16(buf[6:]))
	case 0x3d: // Fopen
		g.fs.Fopen(g, readU32(buf[2:]), readU16(buf[6:]))
	case 0x3e: // Fclose
		g.fs.Fclose(g, readU16(buf[2:]))
	case 0x3f: // Fread
		g.fs.Fread(g, readU16(buf[2:]), readU32(buf[4:]), readU32(buf[8:]))
	case 0x40: // Fwrite
		g.fs.Fwrite(g, readU16(buf[2:]), readU32(buf[4:]), readU32(buf[8:]))
	case 0x41: // Fdelete
		g.fs.Fdelete(g, readU32(buf[2:]))
	case 0x42: // Fseek
		g.fs.Fseek(g, readI32(buf[2:]), readU16(buf[6:]), readU16(buf[8:]))
	case 0x43: // Fattrib: forwarded as a no-op fallback, see gemdos.c
		g.fallback()
	case 0x47: // Dgetpath
		g.fs.Dgetpath(g, readU32(buf[2:]), readU16(buf[6:]))
	case 0x4b: // Pexec
		g.pexec(readU16(buf[2:]), readU32(buf[4:]), readU32(buf[8:]), readU32(buf[12:]))
	case 0x4e: // Fsfirst
		g.fs.Fsfirst(g, readU32(buf[2:]), readU16(buf[6:]))
	case 0x4f: // Fsnext
		g.fs.Fsnext(g)
	case 0x56: // Frename
		g.fs.Frename(g, readU32(buf[4:]), readU32(buf[8:]))
	case 0x57: // Fdatime
		g.fs.Fdatime(g, readU32(buf[2:]), readU16(buf[6:]), readU16(buf[8:]))
	case 0xffff: // driver initialisation
		g.driveInit(readU32(buf[0:]), readU32(buf[4:]))
	default:
		g.tracef("unhandled opcode %#x", opcode)
	}
}

// driveInitScratchOffset is how far past the resident block's own end
// the installed driver leaves free for the host to stage short strings
// (the install banner) before invoking a real GEMDOS call against them.
const driveInitScratchOffset = 0x100

// driveInit assigns the next free GEMDOS drive letter and writes the
// updated drive bitmap back into fabric memory, mirroring drive_init.
func (g *GemdosRedirector) driveInit(beginAddr, resblkAddr uint32) {
	g.actionRequired()
	drvbits := g.readLong(0x4c2)
	drv := 2
	for drvbits&(1<<uint(drv)) != 0 {
		drv++
	}
	g.gemdosDrv = drv
	g.writeLong(0x4c2, drvbits|(1<<uint(drv)))
	g.printString(resblkAddr+driveInitScratchOffset, fmt.Sprintf("GEMDOS drive installed as drive %c:", 'A'+byte(drv)))
	if drv == 2 {
		g.currentDrv = 2
	}
	g.fallback()
}

func writeU16(p []byte, v uint16) { p[0] = byte(v >> 8); p[1] = byte(v) }
func writeU32(p []byte, v uint32) {
	p[0] = byte(v >> 24)
	p[1] = byte(v >> 16)
	p[2] = byte(v >> 8)
	p[3] = byte(v)
}
func readU16(p []byte) uint16 { return uint16(p[0])<<8 | uint16(p[1]) }
func readU32(p []byte) uint32 {
	return uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | uint32(p[3])
}
func readI32(p []byte) int32 { return int32(readU32(p)) }
