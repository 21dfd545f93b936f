package main

import (
	"fmt"
	"sync"
)

// FloppyDrive is one of the two physical drive slots (A: or B:), each
// backed by an optional FloppyImage. Hot-swapping a drive's image is a
// no-op if the new path is identical to what's already mounted, mirroring
// media_loader.go's request-generation dedup applied to physical media
// instead of a soundtrack.
type FloppyDrive struct {
	mu      sync.Mutex
	img     *FloppyImage
	path    string
	gen     uint64
	enabled bool
}

// FloppyEngine owns both physical drive slots and the currently selected
// per-drive track and shared side that ReadSector and WriteSector use, set
// through Seek and SetSide. The floppy interrupt handler does not move this
// cursor; it takes drive, track and side from the fabric's status word.
type FloppyEngine struct {
	drives [2]FloppyDrive

	curTrack [2]int
	curSide  int
	motorOn  bool

	// skew and interleave are applied to every Insert, the configured
	// analogue of change_floppy's literal flopimg_open(filename,0,3,1)
	// arguments.
	skew       int
	interleave int

	verbose bool
}

func NewFloppyEngine(verbose bool, skew, interleave int) *FloppyEngine {
	return &FloppyEngine{verbose: verbose, skew: skew, interleave: interleave}
}

func (e *FloppyEngine) tracef(format string, args ...interface{}) {
	if e.verbose {
		fmt.Printf("floppy: "+format+"\n", args...)
	}
}

// Insert hot-swaps drive d's image. An empty path ejects. Re-inserting the
// path that's already mounted is a no-op, so a front-end re-issuing the
// same change_floppy control-socket call doesn't thrash the image file.
// The engine's configured skew/interleave tune a sector-image/compressed-
// sector-image load's re-encode to MFM, mirroring change_floppy's
// flopimg_open(filename,0,skew,interleave).
func (e *FloppyEngine) Insert(d int, path string, writeProtect bool) error {
	drv := &e.drives[d]
	drv.mu.Lock()
	defer drv.mu.Unlock()

	if path == drv.path && drv.img != nil {
		return nil
	}
	if drv.img != nil {
		if err := drv.img.Flush(); err != nil {
			e.tracef("flush drive %d: %v", d, err)
		}
		drv.img = nil
	}
	drv.path = path
	drv.gen++
	if path == "" {
		drv.enabled = false
		return nil
	}
	img, err := LoadFloppyImage(path, e.skew, e.interleave)
	if err != nil {
		return fmt.Errorf("floppyengine: insert drive %d: %w", d, err)
	}
	img.writeProt = writeProtect
	drv.img = img
	drv.enabled = true
	return nil
}

func (e *FloppyEngine) Eject(d int) error { return e.Insert(d, "", false) }

func (e *FloppyEngine) Mounted(d int) bool {
	drv := &e.drives[d]
	drv.mu.Lock()
	defer drv.mu.Unlock()
	return drv.img != nil
}

// ReadSector reads one sector off drive d at the engine's currently
// selected track/side.
func (e *FloppyEngine) ReadSector(d int, sector int) ([]byte, error) {
	drv := &e.drives[d]
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.img == nil {
		return nil, fmt.Errorf("floppyengine: drive %d empty", d)
	}
	return drv.img.ReadSector(e.curTrack[d], e.curSide, sector)
}

func (e *FloppyEngine) WriteSector(d int, sector int, buf []byte) error {
	drv := &e.drives[d]
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.img == nil {
		return fmt.Errorf("floppyengine: drive %d empty", d)
	}
	return drv.img.WriteSector(e.curTrack[d], e.curSide, sector, buf)
}

// Seek moves drive d's head to the given track, clamped to 0..maxTrack-1
// whatever the mounted image's own track count.
func (e *FloppyEngine) Seek(d, track int) {
	if track < 0 {
		track = 0
	}
	if track >= maxTrack {
		track = maxTrack - 1
	}
	e.curTrack[d] = track
}

func (e *FloppyEngine) SetSide(side int) { e.curSide = side & 1 }

// TrackWindow returns drive d's live raw MFM byte stream for (track,
// side), or nil if the drive is empty, for the floppy interrupt handler
// to stage reads from directly.
func (e *FloppyEngine) TrackWindow(d, track, side int) []byte {
	drv := &e.drives[d]
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.img == nil {
		return nil
	}
	return drv.img.TrackWindow(track, side)
}

// CommitTrackWindow writes buf into drive d's track window at byte
// offset pos, a no-op if the drive is empty or write-protected.
func (e *FloppyEngine) CommitTrackWindow(d, track, side, pos int, buf []byte) {
	drv := &e.drives[d]
	drv.mu.Lock()
	defer drv.mu.Unlock()
	if drv.img == nil {
		return
	}
	drv.img.CommitTrackWindow(track, side, pos, buf)
}

// FlushAll writes back any dirty image before shutdown.
func (e *FloppyEngine) FlushAll() {
	for i := range e.drives {
		drv := &e.drives[i]
		drv.mu.Lock()
		if drv.img != nil {
			if err := drv.img.Flush(); err != nil {
				e.tracef("flush drive %d: %v", i, err)
			}
		}
		drv.mu.Unlock()
	}
}
