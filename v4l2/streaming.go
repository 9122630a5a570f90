package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// Streaming with memory-mapped buffers.
// https://www.kernel.org/doc/html/latest/userspace-api/media/v4l/mmap.html

// InitBuffers asks the driver to allocate count MMAP buffers and returns the
// granted allocation. Drivers are free to grant fewer buffers than asked;
// callers that depend on an exact pool size must check the returned count.
func InitBuffers(fd uintptr, count uint32) (RequestBuffers, error) {
	req := RequestBuffers{
		Count:      count,
		StreamType: BufTypeVideoCapture,
		Memory:     IOTypeMMAP,
	}

	if err := send(fd, vidiocReqBufs, uintptr(unsafe.Pointer(&req))); err != nil {
		return RequestBuffers{}, fmt.Errorf("request buffers: %w", err)
	}
	if req.Count < 2 {
		return RequestBuffers{}, errors.New("request buffers: insufficient memory on device")
	}
	return req, nil
}

// GetBuffer queries allocation info for the buffer at index. Valid only
// after InitBuffers.
func GetBuffer(fd uintptr, index uint32) (Buffer, error) {
	b := buffer{
		index:  index,
		typ:    BufTypeVideoCapture,
		memory: IOTypeMMAP,
	}

	if err := send(fd, vidiocQueryBuf, uintptr(unsafe.Pointer(&b))); err != nil {
		return Buffer{}, fmt.Errorf("query buffer: %w", err)
	}
	return makeBuffer(&b), nil
}

// MapMemoryBuffer maps the driver buffer described by offset and length
// into the process address space.
func MapMemoryBuffer(fd uintptr, offset int64, length int) ([]byte, error) {
	data, err := sys.Mmap(int(fd), offset, length, sys.PROT_READ|sys.PROT_WRITE, sys.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map memory buffer: %w", err)
	}
	return data, nil
}

// UnmapMemoryBuffer releases a mapping created by MapMemoryBuffer.
func UnmapMemoryBuffer(buf []byte) error {
	if err := sys.Munmap(buf); err != nil {
		return fmt.Errorf("unmap memory buffer: %w", err)
	}
	return nil
}

// QueueBuffer hands the buffer at index back to the driver for filling.
func QueueBuffer(fd uintptr, index uint32) error {
	b := buffer{
		index:  index,
		typ:    BufTypeVideoCapture,
		memory: IOTypeMMAP,
	}

	if err := send(fd, vidiocQueueBuf, uintptr(unsafe.Pointer(&b))); err != nil {
		return fmt.Errorf("buffer queue: %w", err)
	}
	return nil
}

// DequeueBuffer takes a filled buffer from the driver. With a non-blocking
// descriptor it returns ErrorTemporary (EAGAIN) when no buffer is ready.
func DequeueBuffer(fd uintptr) (Buffer, error) {
	b := buffer{
		typ:    BufTypeVideoCapture,
		memory: IOTypeMMAP,
	}

	if err := send(fd, vidiocDequeueBuf, uintptr(unsafe.Pointer(&b))); err != nil {
		return Buffer{}, fmt.Errorf("buffer dequeue: %w", err)
	}
	return makeBuffer(&b), nil
}

// StreamOn starts capture streaming.
func StreamOn(fd uintptr) error {
	bufType := BufTypeVideoCapture
	if err := send(fd, vidiocStreamOn, uintptr(unsafe.Pointer(&bufType))); err != nil {
		return fmt.Errorf("stream on: %w", err)
	}
	return nil
}

// StreamOff stops capture streaming. Any queued buffers are dequeued by the
// driver as a side effect.
func StreamOff(fd uintptr) error {
	bufType := BufTypeVideoCapture
	if err := send(fd, vidiocStreamOff, uintptr(unsafe.Pointer(&bufType))); err != nil {
		return fmt.Errorf("stream off: %w", err)
	}
	return nil
}
