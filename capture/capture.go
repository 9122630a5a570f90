// Package capture owns the camera device and presents the most recent
// frame to a single consumer. A fixed pool of kernel-mapped buffers cycles
// between the driver, a bounded ready queue, and a free queue; a dedicated
// worker drives the acquisition loop.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rboyer503/pi-server/imgproc"
	"github.com/rboyer503/pi-server/v4l2"
)

const (
	// NumBuffers is the fixed size of the kernel buffer pool.
	NumBuffers = 10
	// MinQueueHeadspace is the minimum number of buffers that must remain
	// with the driver: the consumer-owned buffer, the just-captured buffer,
	// and the buffer currently filling.
	MinQueueHeadspace = 3

	selectTimeout = 2 * time.Second
)

// ErrStopped is returned by GetLatest once capture has stopped, whether
// from cancellation or from a fatal device error. Callers distinguish the
// two through their own interrupt flag.
var ErrStopped = errors.New("capture: stopped")

// Config describes the stream to negotiate with the device.
type Config struct {
	Device string
	Width  uint32
	Height uint32
	FPS    uint32
}

// Source is a device-driven frame producer. Open spawns the capture
// worker; GetLatest hands the newest ready frame to the consumer and
// reports how many older frames were discarded to reach it.
type Source struct {
	cfg Config
	log zerolog.Logger

	fd      uintptr
	buffers [][]byte
	pool    *slotPool

	capturing   atomic.Bool
	stop        chan struct{}
	stopOnce    sync.Once
	releaseOnce sync.Once
	wg          sync.WaitGroup
}

// New creates an unopened source.
func New(cfg Config, log zerolog.Logger) *Source {
	return &Source{
		cfg:  cfg,
		log:  log.With().Str("component", "capture").Logger(),
		pool: newSlotPool(NumBuffers - MinQueueHeadspace),
		stop: make(chan struct{}),
	}
}

// Open opens and configures the device, maps the buffer pool, and starts
// the capture worker. On failure every acquired resource is released
// before returning.
func (s *Source) Open() error {
	fd, err := v4l2.OpenDevice(s.cfg.Device)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	s.fd = fd

	if err := s.setup(); err != nil {
		s.unmapBuffers()
		if cerr := v4l2.CloseDevice(s.fd); cerr != nil {
			s.log.Warn().Err(cerr).Msg("closing device after failed setup")
		}
		return fmt.Errorf("capture: %w", err)
	}

	s.capturing.Store(true)
	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *Source) setup() error {
	if err := v4l2.SetFrameRate(s.fd, s.cfg.FPS); err != nil {
		return err
	}

	want := v4l2.PixFormat{
		Width:       s.cfg.Width,
		Height:      s.cfg.Height,
		PixelFormat: v4l2.PixelFmtBGR24,
		Field:       v4l2.FieldNone,
	}
	got, err := v4l2.SetPixFormat(s.fd, want)
	if err != nil {
		return err
	}
	if got.PixelFormat != want.PixelFormat {
		return fmt.Errorf("requested pixel format rejected by device")
	}

	req, err := v4l2.InitBuffers(s.fd, NumBuffers)
	if err != nil {
		return err
	}
	if req.Count != NumBuffers {
		return fmt.Errorf("driver granted %d buffers, need %d", req.Count, NumBuffers)
	}

	s.buffers = make([][]byte, NumBuffers)
	for i := uint32(0); i < NumBuffers; i++ {
		info, err := v4l2.GetBuffer(s.fd, i)
		if err != nil {
			return err
		}
		buf, err := v4l2.MapMemoryBuffer(s.fd, int64(info.Offset), int(info.Length))
		if err != nil {
			return err
		}
		s.buffers[i] = buf
	}
	return nil
}

// IsCapturing reports whether the capture worker is still running.
func (s *Source) IsCapturing() bool {
	return s.capturing.Load()
}

// GetLatest blocks until a ready frame exists and returns it together with
// the number of additional older frames dropped at dequeue time. The
// returned frame aliases kernel memory and must be released before its
// slot can cycle back to the driver.
func (s *Source) GetLatest() (*Frame, int, error) {
	if !s.capturing.Load() {
		return nil, 0, ErrStopped
	}

	index, dropped, ok := s.pool.takeLatest()
	if !ok {
		return nil, 0, ErrStopped
	}

	size := int(s.cfg.Width*s.cfg.Height) * imgproc.Channels
	f := &Frame{
		pool:  s.pool,
		index: index,
		img:   imgproc.FrameFromPix(int(s.cfg.Width), int(s.cfg.Height), s.buffers[index][:size]),
	}
	return f, dropped, nil
}

// Cancel requests cooperative shutdown of the capture worker and wakes any
// consumer blocked in GetLatest.
func (s *Source) Cancel() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.pool.close()
}

// Close cancels the worker, joins it, and releases device resources. Safe
// to call after a fatal capture error.
func (s *Source) Close() error {
	s.Cancel()
	s.wg.Wait()
	s.release()
	s.log.Info().Msg("video capture released")
	return nil
}

func (s *Source) canceled() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// run is the capture worker: enqueue the pool, start the stream, then
// loop waiting for readiness, dequeueing one buffer, re-enqueueing freed
// slots, and admitting the new slot to the ready queue.
func (s *Source) run() {
	defer s.wg.Done()
	defer s.capturing.Store(false)
	defer s.pool.close()

	for i := uint32(0); i < NumBuffers; i++ {
		if err := v4l2.QueueBuffer(s.fd, i); err != nil {
			s.log.Error().Err(err).Msg("initial buffer enqueue failed")
			return
		}
	}
	if err := v4l2.StreamOn(s.fd); err != nil {
		s.log.Error().Err(err).Msg("stream activation failed")
		return
	}

	for {
		if s.canceled() {
			s.log.Info().Msg("capture worker canceled")
			s.release()
			return
		}

		if err := v4l2.WaitForDeviceRead(s.fd, selectTimeout); err != nil {
			if s.canceled() {
				s.log.Info().Msg("capture worker canceled")
				s.release()
				return
			}
			// A starved select is fatal: the device has stalled.
			s.log.Error().Err(err).Msg("device readiness wait failed")
			return
		}

		var buf v4l2.Buffer
		for {
			b, err := v4l2.DequeueBuffer(s.fd)
			if s.canceled() {
				s.log.Info().Msg("capture worker canceled after dequeue")
				s.release()
				return
			}
			if errors.Is(err, v4l2.ErrorTemporary) {
				continue
			}
			if err != nil {
				s.log.Error().Err(err).Msg("buffer dequeue failed")
				return
			}
			buf = b
			break
		}

		for _, idx := range s.pool.drainFree() {
			if err := v4l2.QueueBuffer(s.fd, uint32(idx)); err != nil {
				s.log.Error().Err(err).Msg("buffer re-enqueue failed")
				return
			}
		}

		s.pool.admit(int(buf.Index))
	}
}

// release shuts the stream off, unmaps the pool, and closes the device.
// Idempotent: callable from both the worker's cancel path and Close.
func (s *Source) release() {
	s.releaseOnce.Do(func() {
		if err := v4l2.StreamOff(s.fd); err != nil {
			s.log.Warn().Err(err).Msg("stream off failed")
		}
		s.unmapBuffers()
		if err := v4l2.CloseDevice(s.fd); err != nil {
			s.log.Warn().Err(err).Msg("device close failed")
		}
	})
}

func (s *Source) unmapBuffers() {
	for i, buf := range s.buffers {
		if buf == nil {
			continue
		}
		if err := v4l2.UnmapMemoryBuffer(buf); err != nil {
			s.log.Warn().Err(err).Msg("buffer unmap failed")
		}
		s.buffers[i] = nil
	}
}

// Frame is a move-only handle over one kernel-mapped buffer slot. Release
// returns the slot to the free queue; the pixel view is invalid after
// that.
type Frame struct {
	pool     *slotPool
	index    int
	released atomic.Bool
	img      *imgproc.Frame
}

// Image returns the BGR pixel view backed by the kernel mapping.
func (f *Frame) Image() *imgproc.Frame {
	return f.img
}

// Release returns the underlying slot to the free queue. Further use of
// the pixel view is invalid. Release is idempotent.
func (f *Frame) Release() {
	if f.released.CompareAndSwap(false, true) {
		f.pool.release(f.index)
		f.img = nil
	}
}
