package pipeline

// ErrorCode identifies the failure that terminated the pipeline. Its value
// doubles as the process exit code. The first non-None code recorded wins.
type ErrorCode int32

const (
	ErrNone ErrorCode = iota
	ErrListenFail
	ErrAcceptFail
	ErrCaptureOpenFail
	ErrCaptureGrabFail
	ErrSendFail
	ErrReleaseFail
	ErrInterrupt
	ErrBadAuth
)

var errorCodeNames = []string{
	"None",
	"ListenFail",
	"AcceptFail",
	"CaptureOpenFail",
	"CaptureGrabFail",
	"SendFail",
	"ReleaseFail",
	"Interrupt",
	"BadAuth",
}

func (e ErrorCode) String() string {
	if e < 0 || int(e) >= len(errorCodeNames) {
		return "Unknown"
	}
	return errorCodeNames[e]
}

// ExitCode returns the process exit code for this error kind.
func (e ErrorCode) ExitCode() int {
	return int(e)
}
