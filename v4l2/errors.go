package v4l2

import (
	"errors"

	sys "golang.org/x/sys/unix"
)

var (
	// ErrorSystem indicates a structural, terminal failure (bad descriptor,
	// device gone, I/O error). Operations returning it should not be retried.
	ErrorSystem = errors.New("system error")

	// ErrorBadArgument corresponds to EINVAL: the request does not meet the
	// requirements of the ioctl.
	ErrorBadArgument = errors.New("bad argument error")

	// ErrorTemporary indicates a condition that may resolve on retry.
	ErrorTemporary = errors.New("temporary error")

	// ErrorTimeout indicates a wait for device readiness expired.
	ErrorTimeout = errors.New("timeout error")

	// ErrorUnsupported corresponds to ENOTTY: the device does not implement
	// the requested ioctl.
	ErrorUnsupported = errors.New("unsupported error")

	// ErrorInterrupted corresponds to EINTR.
	ErrorInterrupted = errors.New("interrupted")
)

func parseErrorType(errno sys.Errno) error {
	switch errno {
	case sys.EBADF, sys.ENOMEM, sys.ENODEV, sys.EIO, sys.ENXIO, sys.EFAULT:
		return ErrorSystem
	case sys.EINTR:
		return ErrorInterrupted
	case sys.EINVAL:
		return ErrorBadArgument
	case sys.ENOTTY:
		return ErrorUnsupported
	case sys.EAGAIN:
		// Errno.Timeout also matches EAGAIN; a non-blocking dequeue with no
		// buffer ready is a retryable condition, not an expired wait.
		return ErrorTemporary
	default:
		if errno.Timeout() {
			return ErrorTimeout
		}
		if errno.Temporary() {
			return ErrorTemporary
		}
		return errno
	}
}
