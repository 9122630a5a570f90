package v4l2

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	sys "golang.org/x/sys/unix"
)

// OpenDevice opens the video device at path for non-blocking streaming I/O.
// It validates that the path names a character device and retries opens
// interrupted by signals. The raw descriptor is returned; some drivers
// report busy when opened through the Go file API.
func OpenDevice(path string) (uintptr, error) {
	fstat, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("open device: %w", err)
	}
	if fstat.Mode()&fs.ModeCharDevice == 0 {
		return 0, fmt.Errorf("open device: %s: not a character device", path)
	}

	for {
		fd, err := sys.Openat(sys.AT_FDCWD, path, sys.O_RDWR|sys.O_NONBLOCK, 0)
		if err == nil {
			return uintptr(fd), nil
		}
		if errors.Is(err, sys.EINTR) {
			continue
		}
		return 0, &os.PathError{Op: "open", Path: path, Err: err}
	}
}

// CloseDevice closes a descriptor returned by OpenDevice.
func CloseDevice(fd uintptr) error {
	return sys.Close(int(fd))
}

// ioctl wraps Syscall(SYS_IOCTL) with transparent EINTR retry.
func ioctl(fd, req, arg uintptr) (err sys.Errno) {
	for {
		_, _, errno := sys.Syscall(sys.SYS_IOCTL, fd, req, arg)
		switch errno {
		case 0:
			return 0
		case sys.EINTR:
			continue
		default:
			return errno
		}
	}
}

// send issues an ioctl request and maps the errno to a sentinel error.
func send(fd, req, arg uintptr) error {
	errno := ioctl(fd, req, arg)
	if errno == 0 {
		return nil
	}
	return parseErrorType(errno)
}

// WaitForDeviceRead blocks until the device is ready to be read or the
// timeout expires. EINTR during select is retried.
func WaitForDeviceRead(fd uintptr, timeout time.Duration) error {
	for {
		timeval := sys.NsecToTimeval(timeout.Nanoseconds())
		var fdsRead sys.FdSet
		fdsRead.Set(int(fd))
		n, err := sys.Select(int(fd+1), &fdsRead, nil, nil, &timeval)
		switch {
		case n == -1 || err != nil:
			if errors.Is(err, sys.EINTR) {
				continue
			}
			return fmt.Errorf("wait for device read: %w", err)
		case n == 0:
			return fmt.Errorf("wait for device read: %w", ErrorTimeout)
		default:
			return nil
		}
	}
}
