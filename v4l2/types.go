package v4l2

import (
	"encoding/binary"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// BufType (v4l2_buf_type)
// https://elixir.bootlin.com/linux/latest/source/include/uapi/linux/videodev2.h#L141
type BufType = uint32

// BufTypeVideoCapture is the only stream type this binding services.
const BufTypeVideoCapture BufType = 1

// IOType (v4l2_memory)
type IOType = uint32

// IOTypeMMAP selects memory-mapped streaming I/O.
const IOTypeMMAP IOType = 1

// FieldType (v4l2_field)
type FieldType = uint32

// FieldNone requests progressive (non-interlaced) frames.
const FieldNone FieldType = 1

// FourCCType identifies a pixel format as four packed ASCII characters.
type FourCCType = uint32

var (
	// PixelFmtBGR24 is 24-bit BGR, 8 bits per component.
	PixelFmtBGR24 FourCCType = fourcc('B', 'G', 'R', '3')
	// PixelFmtRGB24 is 24-bit RGB, 8 bits per component.
	PixelFmtRGB24 FourCCType = fourcc('R', 'G', 'B', '3')
	// PixelFmtGrey is 8-bit greyscale.
	PixelFmtGrey FourCCType = fourcc('G', 'R', 'E', 'Y')
)

// PixelFormats maps supported FourCC codes to readable descriptions.
var PixelFormats = map[FourCCType]string{
	PixelFmtBGR24: "24-bit BGR 8-8-8",
	PixelFmtRGB24: "24-bit RGB 8-8-8",
	PixelFmtGrey:  "8-bit Greyscale",
}

// PixFormat (v4l2_pix_format) describes single-planar image geometry.
// https://elixir.bootlin.com/linux/latest/source/include/uapi/linux/videodev2.h#L496
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  FourCCType
	Field        FieldType
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YcbcrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// format (v4l2_format) carries the pix format inside a 200-byte union.
// The union holds pointer-bearing members, so it is 8-byte aligned.
type format struct {
	typ uint32
	_   [4]byte
	raw [200]byte
}

func (f *format) pix() *PixFormat {
	return (*PixFormat)(unsafe.Pointer(&f.raw[0]))
}

// Fract (v4l2_fract) is a ratio, used for the frame interval.
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// captureParm (v4l2_captureparm)
type captureParm struct {
	Capability   uint32
	CaptureMode  uint32
	TimePerFrame Fract
	ExtendedMode uint32
	ReadBuffers  uint32
	_            [4]uint32
}

// streamParm (v4l2_streamparm). The parm union has no pointer members,
// so the struct stays 4-byte aligned and 204 bytes long.
type streamParm struct {
	typ uint32
	raw [200]byte
}

func (p *streamParm) capture() *captureParm {
	return (*captureParm)(unsafe.Pointer(&p.raw[0]))
}

// RequestBuffers (v4l2_requestbuffers) requests driver buffer allocation.
// https://www.kernel.org/doc/html/latest/userspace-api/media/v4l/vidioc-reqbufs.html
type RequestBuffers struct {
	Count        uint32
	StreamType   uint32
	Memory       uint32
	Capabilities uint32
	_            [1]uint32
}

// timecode (v4l2_timecode)
type timecode struct {
	Type    uint32
	Flags   uint32
	Frames  uint8
	Seconds uint8
	Minutes uint8
	Hours   uint8
	_       [4]uint8
}

// buffer (v4l2_buffer) is the wire layout exchanged with the driver on
// 64-bit targets. The m union is kept raw; for MMAP streams its first four
// bytes hold the map offset.
type buffer struct {
	index     uint32
	typ       uint32
	bytesUsed uint32
	flags     uint32
	field     uint32
	_         [4]byte
	timestamp sys.Timeval
	timecode  timecode
	sequence  uint32
	memory    uint32
	m         [8]byte
	length    uint32
	reserved2 uint32
	requestFD int32
}

func (b *buffer) offset() uint32 {
	return binary.LittleEndian.Uint32(b.m[0:4])
}

// Buffer is the decoded view of a queued or dequeued driver buffer.
type Buffer struct {
	Index     uint32
	BytesUsed uint32
	Flags     uint32
	Sequence  uint32
	Length    uint32
	Offset    uint32
	Timestamp sys.Timeval
}

func makeBuffer(b *buffer) Buffer {
	return Buffer{
		Index:     b.index,
		BytesUsed: b.bytesUsed,
		Flags:     b.flags,
		Sequence:  b.sequence,
		Length:    b.length,
		Offset:    b.offset(),
		Timestamp: b.timestamp,
	}
}
