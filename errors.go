package main

// Sense is a packed 0xAAQQSS value: AA=additional sense code,
// QQ=additional sense code qualifier, SS=sense key. Matches the wire
// format request_sense packs back to the guest.
type Sense uint32

const (
	ErrorOK       Sense = 0x000000 // OK return status
	ErrorNoSector Sense = 0x010004 // No index or sector
	ErrorWriteErr Sense = 0x030002 // Write fault
	ErrorOpcode   Sense = 0x200005 // Opcode not supported
	ErrorInvAddr  Sense = 0x21000d // Invalid block address
	ErrorInvArg   Sense = 0x240005 // Invalid argument
	ErrorInvLUN   Sense = 0x250005 // Invalid LUN
)

func (s Sense) additionalSenseCode() byte          { return byte(s >> 16) }
func (s Sense) additionalSenseQualifier() byte      { return byte(s >> 8) }
func (s Sense) senseKey() byte                      { return byte(s) & 0x0f }

// AcsiStatus is the one-byte status value latched into the status register
// after a command completes.
type AcsiStatus byte

const (
	StatusOK    AcsiStatus = 0
	StatusError AcsiStatus = 2
)
