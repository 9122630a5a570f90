package v4l2

import "unsafe"

// ioctl command encoding uses 32 bits total:
// command number in the lower 8 bits, command type in the next 8,
// parameter struct size in the lower 14 bits of the upper 16, and the
// access mode in the highest 2 bits.
// https://elixir.bootlin.com/linux/latest/source/include/uapi/asm-generic/ioctl.h
const (
	iocOpWrite = 1
	iocOpRead  = 2

	iocNumberBits = 8
	iocTypeBits   = 8
	iocSizeBits   = 14

	numberPos = 0
	typePos   = numberPos + iocNumberBits
	sizePos   = typePos + iocTypeBits
	opPos     = sizePos + iocSizeBits
)

func encode(iocOp, iocType, number, size uintptr) uintptr {
	return (iocOp << opPos) | (iocType << typePos) | (number << numberPos) | (size << sizePos)
}

func encodeWrite(iocType, number, size uintptr) uintptr {
	return encode(iocOpWrite, iocType, number, size)
}

func encodeReadWrite(iocType, number, size uintptr) uintptr {
	return encode(iocOpRead|iocOpWrite, iocType, number, size)
}

// fourcc packs four ASCII characters into the 32-bit code used by the
// kernel to identify pixel formats.
// https://elixir.bootlin.com/linux/latest/source/include/uapi/linux/videodev2.h#L81
func fourcc(a, b, c, d uint32) uint32 {
	return a | b<<8 | c<<16 | d<<24
}

// V4L2 ioctl commands used by the capture path.
// https://www.kernel.org/doc/html/latest/userspace-api/media/v4l/user-func.html
var (
	vidiocSetFormat     = encodeReadWrite('V', 5, unsafe.Sizeof(format{}))          // VIDIOC_S_FMT
	vidiocReqBufs       = encodeReadWrite('V', 8, unsafe.Sizeof(RequestBuffers{}))  // VIDIOC_REQBUFS
	vidiocQueryBuf      = encodeReadWrite('V', 9, unsafe.Sizeof(buffer{}))          // VIDIOC_QUERYBUF
	vidiocQueueBuf      = encodeReadWrite('V', 15, unsafe.Sizeof(buffer{}))         // VIDIOC_QBUF
	vidiocDequeueBuf    = encodeReadWrite('V', 17, unsafe.Sizeof(buffer{}))         // VIDIOC_DQBUF
	vidiocStreamOn      = encodeWrite('V', 18, unsafe.Sizeof(int32(0)))             // VIDIOC_STREAMON
	vidiocStreamOff     = encodeWrite('V', 19, unsafe.Sizeof(int32(0)))             // VIDIOC_STREAMOFF
	vidiocSetStreamParm = encodeReadWrite('V', 22, unsafe.Sizeof(streamParm{}))     // VIDIOC_S_PARM
	vidiocGetStreamParm = encodeReadWrite('V', 21, unsafe.Sizeof(streamParm{}))     // VIDIOC_G_PARM
	vidiocGetFormat     = encodeReadWrite('V', 4, unsafe.Sizeof(format{}))          // VIDIOC_G_FMT
)
