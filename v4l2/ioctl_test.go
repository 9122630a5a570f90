package v4l2

import (
	"testing"
	"unsafe"
)

// Known-good command values from <linux/videodev2.h> on 64-bit targets.
// A mismatch here means a struct layout drifted from the kernel ABI.
func TestCommandEncoding(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"VIDIOC_G_FMT", vidiocGetFormat, 0xc0d05604},
		{"VIDIOC_S_FMT", vidiocSetFormat, 0xc0d05605},
		{"VIDIOC_REQBUFS", vidiocReqBufs, 0xc0145608},
		{"VIDIOC_QUERYBUF", vidiocQueryBuf, 0xc0585609},
		{"VIDIOC_QBUF", vidiocQueueBuf, 0xc058560f},
		{"VIDIOC_DQBUF", vidiocDequeueBuf, 0xc0585611},
		{"VIDIOC_STREAMON", vidiocStreamOn, 0x40045612},
		{"VIDIOC_STREAMOFF", vidiocStreamOff, 0x40045613},
		{"VIDIOC_G_PARM", vidiocGetStreamParm, 0xc0cc5615},
		{"VIDIOC_S_PARM", vidiocSetStreamParm, 0xc0cc5616},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: encoded %#x, want %#x", tt.name, tt.got, tt.want)
		}
	}
}

func TestStructSizes(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"v4l2_format", unsafe.Sizeof(format{}), 208},
		{"v4l2_streamparm", unsafe.Sizeof(streamParm{}), 204},
		{"v4l2_buffer", unsafe.Sizeof(buffer{}), 88},
		{"v4l2_requestbuffers", unsafe.Sizeof(RequestBuffers{}), 20},
		{"v4l2_pix_format", unsafe.Sizeof(PixFormat{}), 48},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("sizeof(%s) = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestFourCC(t *testing.T) {
	if PixelFmtBGR24 != 0x33524742 {
		t.Errorf("BGR24 fourcc = %#x, want 0x33524742", PixelFmtBGR24)
	}
	if PixelFmtGrey != 0x59455247 {
		t.Errorf("GREY fourcc = %#x, want 0x59455247", PixelFmtGrey)
	}
}

func TestBufferOffsetDecoding(t *testing.T) {
	var b buffer
	b.m[0] = 0x78
	b.m[1] = 0x56
	b.m[2] = 0x34
	b.m[3] = 0x12
	if got := b.offset(); got != 0x12345678 {
		t.Errorf("offset() = %#x, want 0x12345678", got)
	}
}
