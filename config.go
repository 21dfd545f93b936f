package main

// Config mirrors the fields a UI-side configuration layer would populate
// before handing control to the host core. Parsing an actual config file
// is explicitly out of scope here; this struct is populated either by the
// run command's CLI flags in main.go or by an embedding caller.
type Config struct {
	MemSize             int
	FloppyA             string
	FloppyAEnabled      bool
	FloppyAWriteProtect bool
	FloppyB             string
	FloppyBEnabled      bool
	FloppyBWriteProtect bool
	// ACSIImage holds up to 8 block-device image paths, indexed by ACSI id.
	// An empty string means "no image mounted" for that slot.
	ACSIImage [8]string
	// GEMDOSRoot is the host directory exposed as the logical GEMDOS drive.
	// Empty means the GEMDOS slot is disabled.
	GEMDOSRoot string

	// Timezone is the signed hour offset from UTC applied when encoding
	// file timestamps into GEMDOS date/time words, mirroring config.c's
	// config.timezone (there stored as tz+12; here stored as tz directly).
	Timezone int

	// FloppySkew and FloppyInterleave tune .ST/.MSA sector ordering on load,
	// mirroring the original's flopimg_open(filename, rdonly, skew, interleave).
	FloppySkew       int
	FloppyInterleave int

	Verbose bool
}

// DefaultConfig returns the configuration a standalone run falls back to
// when no flags override it: 4 MB of memory and a floppy interleave of 1,
// with every other field at its zero value.
func DefaultConfig() Config {
	return Config{
		MemSize:          4 * 1024 * 1024,
		Timezone:         0,
		FloppySkew:       0,
		FloppyInterleave: 1,
	}
}
