package pipeline

import (
	"image"
	"sync"
)

// maxDebugRecords bounds the debug frame archive.
const maxDebugRecords = 150

// debugArchive is a ring of archived display frames for the debug display
// mode. The pipeline worker archives; the command reader moves the
// selection, so access is serialized.
type debugArchive struct {
	mu       sync.Mutex
	records  [maxDebugRecords]image.Image
	writeIdx int
	full     bool
	selected int
}

// add stores a frame, overwriting the oldest once the ring is full.
func (a *debugArchive) add(img image.Image) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[a.writeIdx] = img
	a.writeIdx++
	if a.writeIdx == maxDebugRecords {
		a.writeIdx = 0
		a.full = true
	}
}

// selectedFrame returns the currently selected record, or false when the
// archive is empty.
func (a *debugArchive) selectedFrame() (image.Image, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	img := a.records[a.selected]
	return img, img != nil
}

func (a *debugArchive) maxIndex() int {
	if a.full {
		return maxDebugRecords - 1
	}
	return a.writeIdx - 1
}

// next advances the selection, wrapping past the newest record. It returns
// the new selection index.
func (a *debugArchive) next() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selected++
	if a.selected > a.maxIndex() {
		a.selected = 0
	}
	return a.selected
}

// prev moves the selection back, wrapping to the newest record.
func (a *debugArchive) prev() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.selected--
	if a.selected < 0 {
		a.selected = a.maxIndex()
		if a.selected < 0 {
			a.selected = 0
		}
	}
	return a.selected
}
