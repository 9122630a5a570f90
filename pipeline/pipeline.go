// Package pipeline orchestrates the capture, motion-gate, encode, and
// delivery stages. A single worker drives the per-connection streaming
// loop; client commands mutate configuration concurrently through the
// command sink.
package pipeline

import (
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rboyer503/pi-server/capture"
	"github.com/rboyer503/pi-server/config"
	"github.com/rboyer503/pi-server/encode"
	"github.com/rboyer503/pi-server/imgproc"
	"github.com/rboyer503/pi-server/motion"
	"github.com/rboyer503/pi-server/notify"
	"github.com/rboyer503/pi-server/profile"
	"github.com/rboyer503/pi-server/server"
)

// paramPage selects which parameters the param1/param2 commands adjust.
type paramPage int32

const (
	pageBlur paramPage = iota
	pageMotion
	pageMax
)

var paramPageNames = [pageMax]string{"Blur", "Motion"}

// Kernel size and motion threshold adjustment steps and bounds.
const (
	kernelStep    = 2
	kernelMin     = 1
	kernelMax     = 15
	thresholdStep = 5
	thresholdMin  = 1
	thresholdMax  = 100
)

// Manager owns the pipeline lifecycle: the delivery server, the capture
// source of the active session, the motion gate, the encoder, status
// counters, and the notification limiter.
type Manager struct {
	cfg *config.Config
	log zerolog.Logger

	srv     *server.Server
	limiter *notify.Limiter
	gate    *motion.Detector
	enc     *encode.Encoder
	archive debugArchive

	interrupted atomic.Bool
	graceful    atomic.Bool
	running     atomic.Bool
	errCode     atomic.Int32

	mode         atomic.Int32
	page         atomic.Int32
	kernelSize   atomic.Int32
	debugTrigger atomic.Bool
	debugMode    atomic.Bool

	statusMu  sync.Mutex
	status    *Status
	startTime time.Time
	elapsed   time.Duration

	srcMu sync.Mutex
	src   *capture.Source

	wg   sync.WaitGroup
	done chan struct{}
}

// New wires the pipeline from configuration. The manager acts as the
// server's command sink.
func New(cfg *config.Config, log zerolog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		log:    log.With().Str("component", "pipeline").Logger(),
		gate:   motion.New(cfg.MotionThreshold),
		enc:    encode.New(),
		status: newStatus(),
		done:   make(chan struct{}),
	}
	m.mode.Store(int32(encode.ModeMotion))
	m.kernelSize.Store(int32(cfg.KernelSize))

	m.srv = server.New(server.Config{
		MonitorPort: cfg.MonitorPort,
		CommandPort: cfg.CommandPort,
		TokenPath:   cfg.TokenPath,
	}, m, &m.interrupted, log)

	mailer := notify.NewMailer(notify.EmailConfig{
		Host:      cfg.SMTPHost,
		Port:      cfg.SMTPPort,
		From:      cfg.EmailFrom,
		To:        cfg.EmailTo,
		Subject:   "pi-client alert",
		Body:      "Motion detected on rpi4-1.",
		NetrcPath: cfg.NetrcPath,
	})
	m.limiter = notify.NewLimiter(mailer, log)

	return m
}

// Initialize binds the delivery listeners and starts the pipeline worker.
func (m *Manager) Initialize() error {
	if err := m.srv.Initialize(); err != nil {
		m.setError(ErrListenFail)
		return err
	}

	m.running.Store(true)
	m.wg.Add(1)
	go m.worker()
	return nil
}

// Terminate requests cooperative shutdown: the interrupt flag is raised
// and every blocking operation is unblocked. The exit code records the
// interruption.
func (m *Manager) Terminate() {
	m.interrupted.Store(true)

	m.srcMu.Lock()
	if m.src != nil {
		m.src.Cancel()
	}
	m.srcMu.Unlock()

	m.srv.Interrupt()
}

// Shutdown requests the same cooperative stop as Terminate but treats it
// as operator-requested, so the process exits clean.
func (m *Manager) Shutdown() {
	m.graceful.Store(true)
	m.Terminate()
}

// interruptCode maps an interruption to its exit disposition: a requested
// shutdown is not an error.
func (m *Manager) interruptCode() ErrorCode {
	if m.graceful.Load() {
		return ErrNone
	}
	return ErrInterrupt
}

// Wait joins the pipeline worker and releases the listeners.
func (m *Manager) Wait() {
	m.wg.Wait()
	m.srv.Close()
}

// Done is closed once the worker has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// IsRunning reports whether the worker is still alive.
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}

// IsInterrupted reports whether shutdown has been requested.
func (m *Manager) IsInterrupted() bool {
	return m.interrupted.Load()
}

// ErrorCode returns the first terminal error recorded, or ErrNone.
func (m *Manager) ErrorCode() ErrorCode {
	return ErrorCode(m.errCode.Load())
}

// Mode returns the current display mode.
func (m *Manager) Mode() encode.Mode {
	return encode.Mode(m.mode.Load())
}

// KernelSize returns the current blur kernel size.
func (m *Manager) KernelSize() int {
	return int(m.kernelSize.Load())
}

// setError records the error kind; only the first non-None code sticks.
func (m *Manager) setError(code ErrorCode) {
	m.errCode.CompareAndSwap(int32(ErrNone), int32(code))
}

// worker runs until a terminal error or interruption; each iteration
// services one client connection end to end.
func (m *Manager) worker() {
	defer m.wg.Done()
	defer close(m.done)
	defer m.running.Store(false)

	for {
		if !m.srv.WaitForConnection() {
			if m.interrupted.Load() {
				m.setError(m.interruptCode())
			} else {
				m.setError(ErrAcceptFail)
			}
			break
		}

		m.srv.StartCommandReader()
		m.srv.StartMonitor()

		src := capture.New(capture.Config{
			Device: m.cfg.Device,
			Width:  m.cfg.Width,
			Height: m.cfg.Height,
			FPS:    m.cfg.FPS,
		}, m.log)
		if err := src.Open(); err != nil {
			m.log.Error().Err(err).Msg("failed to open video capture")
			m.setError(ErrCaptureOpenFail)
			m.srv.ReleaseConnection()
			break
		}
		m.setSource(src)

		code := m.runStream(src)

		m.setSource(nil)
		src.Close()

		if !m.srv.ReleaseConnection() {
			m.log.Error().Msg("connection release failed")
			m.setError(ErrReleaseFail)
		}
		if m.srv.BadAuth() {
			m.setError(ErrBadAuth)
		}
		// A send failure only ends the session; wait for a new client.
		if code != ErrNone && code != ErrSendFail {
			m.setError(code)
		}
		if m.ErrorCode() != ErrNone || m.interrupted.Load() {
			break
		}
	}
}

func (m *Manager) setSource(src *capture.Source) {
	m.srcMu.Lock()
	m.src = src
	m.srcMu.Unlock()
}

// runStream drives the per-connection capture/process loop and returns
// the code that ended the session.
func (m *Manager) runStream(src *capture.Source) ErrorCode {
	m.statusMu.Lock()
	m.status = newStatus()
	m.statusMu.Unlock()

	m.logParamPage()

	gov := newGovernor(m.cfg.FrameSkip)
	for {
		if m.srv.BadAuth() {
			return ErrNone
		}

		var frame *capture.Frame
		for {
			f, skipped, err := src.GetLatest()
			if err != nil {
				if m.interrupted.Load() {
					m.log.Info().Msg("interrupted while waiting for frame")
					return m.interruptCode()
				}
				m.log.Error().Err(err).Msg("failed to read a frame")
				return ErrCaptureGrabFail
			}
			if !gov.observe(skipped) {
				f.Release()
				continue
			}
			frame = f
			break
		}
		fellBehind := gov.rearm()

		m.statusMu.Lock()
		if m.status.SuppressionProcessing() {
			m.startTime = time.Now()
		}
		suppressed := m.status.IsSuppressed()
		if !suppressed {
			if fellBehind {
				m.status.DroppedFrames++
				if m.cfg.FrameSkip == 1 {
					gov.resetBacklog()
				}
			}
			m.status.Frames++
		}
		m.statusMu.Unlock()

		ok, code := m.processFrame(frame.Image(), suppressed)
		frame.Release()
		if !ok {
			return code
		}

		m.statusMu.Lock()
		m.elapsed = time.Since(m.startTime)
		m.statusMu.Unlock()

		if m.interrupted.Load() {
			m.log.Info().Msg("interrupted after processing frame")
			return m.interruptCode()
		}
	}
}

// processFrame runs the motion gate, applies the display transform,
// encodes, and submits to the delivery server. It reports false with a
// code when the session must end.
func (m *Manager) processFrame(img *imgproc.Frame, suppressed bool) (bool, ErrorCode) {
	var frameUs [stageMax]int64
	mode := encode.Mode(m.mode.Load())

	motionPresent := m.gate.Update(img)

	// With display gating, a quiet scene produces no output at all in
	// motion-detect mode.
	if m.cfg.MotionGated && mode == encode.ModeMotion && !motionPresent {
		return true, ErrNone
	}

	display := m.transform(img, mode, frameUs[:])

	if m.debugTrigger.CompareAndSwap(true, false) || m.debugMode.Load() {
		if mode != encode.ModeDebug {
			m.archive.add(display)
		}
	}

	sendTimer := profile.Start()
	payload, err := m.enc.EncodeSegmented(display)
	if err != nil {
		m.log.Error().Err(err).Msg("frame encode failed")
		return true, ErrNone
	}
	if m.srv.Authorized() {
		if !m.srv.SendFrame(payload) {
			// Client probably disconnected - wait for a new connection.
			return false, ErrSendFail
		}
	}
	frameUs[StageSend] = sendTimer.Micros()

	if motionPresent {
		m.limiter.MaybeNotify()
	}

	if !suppressed {
		m.statusMu.Lock()
		m.status.recordStages(frameUs)
		m.statusMu.Unlock()
	}
	return true, ErrNone
}

// transform produces the display image for the selected mode, recording
// per-stage timings.
func (m *Manager) transform(img *imgproc.Frame, mode encode.Mode, frameUs []int64) image.Image {
	switch mode {
	case encode.ModeMotion:
		return m.gate.Frame().ToImage()

	case encode.ModeGray:
		t := profile.Start()
		gray := imgproc.ToGray(img)
		frameUs[StageGray] = t.Micros()
		return gray.ToImage()

	case encode.ModeBlur:
		t := profile.Start()
		gray := imgproc.ToGray(img)
		frameUs[StageGray] = t.Micros()

		t = profile.Start()
		blurred := imgproc.GaussianBlur(gray, int(m.kernelSize.Load()))
		frameUs[StageBlur] = t.Micros()
		return blurred.ToImage()

	case encode.ModeDebug:
		if archived, ok := m.archive.selectedFrame(); ok {
			return archived
		}
		return img.ToImage()

	default:
		return img.ToImage()
	}
}

// --- server.CommandSink ---

// AdvanceMode steps to the next display mode, wrapping after the last.
func (m *Manager) AdvanceMode() {
	next := encode.Mode(m.mode.Load()).Next()
	m.mode.Store(int32(next))
	m.log.Info().Stringer("mode", next).Msg("image processing mode")
}

// AdvancePage cycles the parameter page.
func (m *Manager) AdvancePage() {
	next := (paramPage(m.page.Load()) + 1) % pageMax
	m.page.Store(int32(next))
	m.logParamPage()
}

// AdjustParam steps a page-dependent parameter up or down, clamping at the
// page's bounds.
func (m *Manager) AdjustParam(param int, up bool) {
	switch paramPage(m.page.Load()) {
	case pageBlur:
		switch param {
		case 1:
			size := int(m.kernelSize.Load())
			if up && size < kernelMax {
				size += kernelStep
			} else if !up && size > kernelMin {
				size -= kernelStep
			}
			m.kernelSize.Store(int32(size))
		case 2:
			var idx int
			if up {
				idx = m.archive.next()
			} else {
				idx = m.archive.prev()
			}
			m.log.Info().Int("record", idx).Msg("debug frame selected")
		}
	case pageMotion:
		if param == 1 {
			threshold := m.gate.Threshold()
			if up && threshold < thresholdMax {
				threshold += thresholdStep
			} else if !up && threshold > thresholdMin {
				threshold -= thresholdStep
			}
			if threshold > thresholdMax {
				threshold = thresholdMax
			}
			if threshold < thresholdMin {
				threshold = thresholdMin
			}
			m.gate.SetThreshold(threshold)
		}
	}
}

// OutputStatus logs the pipeline counters.
func (m *Manager) OutputStatus() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	ev := m.log.Info().
		Int("total_frames", m.status.Frames).
		Int("delayed_frames", m.status.DroppedFrames).
		Int("mailbox_dropped", m.srv.DroppedFrames())
	if m.status.Frames == 0 {
		ev.Msg("statistics")
		return
	}

	if secs := m.elapsed.Seconds(); secs > 0 {
		ev = ev.Float64("avg_fps", float64(m.status.Frames)/secs)
	}
	ev.Msg("statistics")

	for i := StageGray; i < stageMax; i++ {
		m.log.Info().
			Str("stage", i.String()).
			Int64("curr_us", m.status.CurrUs[i]).
			Int64("avg_us", m.status.TotalUs[i]/int64(m.status.Frames)).
			Int64("max_us", m.status.MaxUs[i]).
			Msg("processing time")
	}
}

// OutputConfig logs the mutable configuration.
func (m *Manager) OutputConfig() {
	m.log.Info().
		Stringer("mode", encode.Mode(m.mode.Load())).
		Str("param_page", paramPageNames[paramPage(m.page.Load())]).
		Int32("kernel_size", m.kernelSize.Load()).
		Int("motion_threshold", m.gate.Threshold()).
		Msg("configuration")
}

// DebugTrigger archives the next processed frame.
func (m *Manager) DebugTrigger() {
	m.debugTrigger.Store(true)
}

// ToggleDebugMode flips persistent archiving of processed frames.
func (m *Manager) ToggleDebugMode() {
	enabled := !m.debugMode.Load()
	m.debugMode.Store(enabled)
	m.log.Info().Bool("debug_mode", enabled).Msg("debug mode toggled")
}

func (m *Manager) logParamPage() {
	page := paramPage(m.page.Load())
	ev := m.log.Info().Str("param_page", paramPageNames[page])
	switch page {
	case pageBlur:
		ev.Str("param1", "kernel size").Str("param2", "debug record").Msg("current parameter page")
	case pageMotion:
		ev.Str("param1", "motion threshold").Msg("current parameter page")
	}
}
