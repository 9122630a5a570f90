// Package motion implements the frame-differencing gate that decides
// whether the scene changed since the previous frame.
package motion

import (
	"sync/atomic"

	"github.com/rboyer503/pi-server/imgproc"
)

// Detector compares each frame against the previous one on a half-scale
// grayscale copy. Update is called from the pipeline goroutine only; the
// threshold may be adjusted concurrently from the command reader.
type Detector struct {
	threshold atomic.Int32
	current   *imgproc.Gray
	previous  *imgproc.Gray
	votes     int
}

// New creates a detector with the given binarization threshold.
func New(threshold int) *Detector {
	d := &Detector{}
	d.threshold.Store(int32(threshold))
	return d
}

// SetThreshold replaces the binarization threshold. Safe to call from any
// goroutine.
func (d *Detector) SetThreshold(threshold int) {
	d.threshold.Store(int32(threshold))
}

// Threshold returns the current binarization threshold.
func (d *Detector) Threshold() int {
	return int(d.threshold.Load())
}

// Update ingests a frame and reports whether motion is present relative to
// the previous frame. The very first frame never reports motion.
func (d *Detector) Update(frame *imgproc.Frame) bool {
	// Reduced grayscale copy keeps the diff cheap.
	d.current = imgproc.ToGray(imgproc.DownscaleHalf(frame))

	d.votes = 0
	if d.previous != nil {
		diff := imgproc.AbsDiff(d.previous, d.current)
		imgproc.Threshold(diff, uint8(d.threshold.Load()))
		d.votes = imgproc.CountNonZero(diff)
	}
	d.previous = d.current

	return d.votes > 0
}

// Frame returns the detector's current grayscale frame, used as the
// display image in the motion-detect mode. Valid after the first Update.
func (d *Detector) Frame() *imgproc.Gray {
	return d.current
}

// Votes returns the non-zero pixel count from the last Update.
func (d *Detector) Votes() int {
	return d.votes
}
