// Package encode produces the wire representation of a display frame: the
// image is split into horizontal strips which are PNG-encoded in parallel
// and concatenated with little-endian length prefixes.
package encode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"sync"
)

// Segments is the number of horizontal strips per encoded frame.
const Segments = 4

// Mode selects the image transform applied before encoding.
type Mode int32

const (
	ModeNone Mode = iota
	ModeMotion
	ModeGray
	ModeBlur
	ModeDebug
	ModeMax
)

var modeNames = [ModeMax]string{"None", "MotionDetect", "Gray", "Blur", "Debug"}

func (m Mode) String() string {
	if m < 0 || m >= ModeMax {
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
	return modeNames[m]
}

// Next returns the mode that follows m, wrapping after the last one.
func (m Mode) Next() Mode {
	return (m + 1) % ModeMax
}

type subImager interface {
	image.Image
	SubImage(r image.Rectangle) image.Image
}

// Encoder turns display images into segmented PNG payloads. Compression
// favors speed: the client decodes at capture rate on the other side of a
// wifi link, so encode latency dominates.
type Encoder struct {
	enc png.Encoder
}

// New creates an encoder with fastest-compression PNG settings.
func New() *Encoder {
	return &Encoder{enc: png.Encoder{CompressionLevel: png.BestSpeed}}
}

// EncodeSegmented splits img into Segments horizontal strips, encodes each
// strip concurrently, and returns the strips top to bottom, each preceded
// by its little-endian uint32 byte length.
func (e *Encoder) EncodeSegmented(img image.Image) ([]byte, error) {
	sub, ok := img.(subImager)
	if !ok {
		return nil, fmt.Errorf("encode: image type %T does not support sub-images", img)
	}

	bounds := img.Bounds()
	rows := bounds.Dy() / Segments
	if rows == 0 {
		return nil, fmt.Errorf("encode: image height %d below segment count", bounds.Dy())
	}

	var (
		wg   sync.WaitGroup
		bufs [Segments]bytes.Buffer
		errs [Segments]error
	)
	for i := 0; i < Segments; i++ {
		top := bounds.Min.Y + i*rows
		bottom := top + rows
		if i == Segments-1 {
			bottom = bounds.Max.Y
		}
		strip := sub.SubImage(image.Rect(bounds.Min.X, top, bounds.Max.X, bottom))

		wg.Add(1)
		go func(i int, strip image.Image) {
			defer wg.Done()
			errs[i] = e.enc.Encode(&bufs[i], strip)
		}(i, strip)
	}
	wg.Wait()

	total := 0
	for i := 0; i < Segments; i++ {
		if errs[i] != nil {
			return nil, fmt.Errorf("encode: segment %d: %w", i, errs[i])
		}
		total += 4 + bufs[i].Len()
	}

	out := make([]byte, 0, total)
	var sizePrefix [4]byte
	for i := 0; i < Segments; i++ {
		binary.LittleEndian.PutUint32(sizePrefix[:], uint32(bufs[i].Len()))
		out = append(out, sizePrefix[:]...)
		out = append(out, bufs[i].Bytes()...)
	}
	return out, nil
}
