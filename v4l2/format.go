package v4l2

import (
	"fmt"
	"unsafe"
)

// SetPixFormat applies the pixel format to the device. The driver may
// adjust the request; the granted format is returned so callers can verify
// the negotiation (a rejected pixel format must be treated as fatal).
func SetPixFormat(fd uintptr, pixFmt PixFormat) (PixFormat, error) {
	var f format
	f.typ = BufTypeVideoCapture
	*f.pix() = pixFmt

	if err := send(fd, vidiocSetFormat, uintptr(unsafe.Pointer(&f))); err != nil {
		return PixFormat{}, fmt.Errorf("set pix format: %w", err)
	}
	return *f.pix(), nil
}

// GetPixFormat retrieves the device's current pixel format.
func GetPixFormat(fd uintptr) (PixFormat, error) {
	var f format
	f.typ = BufTypeVideoCapture

	if err := send(fd, vidiocGetFormat, uintptr(unsafe.Pointer(&f))); err != nil {
		return PixFormat{}, fmt.Errorf("get pix format: %w", err)
	}
	return *f.pix(), nil
}

// SetFrameRate requests fps frames per second on the capture stream.
func SetFrameRate(fd uintptr, fps uint32) error {
	var parm streamParm
	parm.typ = BufTypeVideoCapture
	parm.capture().TimePerFrame = Fract{Numerator: 1, Denominator: fps}

	if err := send(fd, vidiocSetStreamParm, uintptr(unsafe.Pointer(&parm))); err != nil {
		return fmt.Errorf("set frame rate: %w", err)
	}
	return nil
}

// GetFrameRate reads the current frame interval and returns it as fps.
func GetFrameRate(fd uintptr) (uint32, error) {
	var parm streamParm
	parm.typ = BufTypeVideoCapture

	if err := send(fd, vidiocGetStreamParm, uintptr(unsafe.Pointer(&parm))); err != nil {
		return 0, fmt.Errorf("get frame rate: %w", err)
	}
	return parm.capture().TimePerFrame.Denominator, nil
}
