// ABOUTME: Headless playback backend with no audio hardware
// ABOUTME: Pulls are driven manually or by a ticker; hotplug is scriptable for tests
package output

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/harperreed/emusync/pkg/audio"
)

const (
	// DefaultHeadlessRate is the native rate of the built-in headless device
	DefaultHeadlessRate = 48000

	// DefaultHeadlessBatch is the frames requested per pull
	DefaultHeadlessBatch = 512
)

// Headless is a Backend that plays nowhere. Tests use it to drive the
// device thread by hand and to simulate disconnects and format changes.
type Headless struct {
	mu        sync.Mutex
	devices   []DeviceInfo
	streams   []*HeadlessStream
	batchSize int
	notify    func(Event)
	closed    bool
}

// NewHeadless creates a headless backend listing devices. With no devices
// it exposes a single default device at DefaultHeadlessRate.
func NewHeadless(devices ...DeviceInfo) *Headless {
	if len(devices) == 0 {
		devices = []DeviceInfo{{
			ID:         "headless-0",
			Name:       "Headless",
			IsDefault:  true,
			SampleRate: DefaultHeadlessRate,
		}}
	}
	return &Headless{
		devices:   slices.Clone(devices),
		batchSize: DefaultHeadlessBatch,
	}
}

// SetBatchSize changes the batch size reported by streams opened afterwards
func (h *Headless) SetBatchSize(frames int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batchSize = frames
}

// Name returns the backend name
func (h *Headless) Name() string {
	return "headless"
}

// Devices returns the scripted device list
func (h *Headless) Devices() ([]DeviceInfo, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	return slices.Clone(h.devices), nil
}

// Open creates a stream that only pulls when told to
func (h *Headless) Open(dev DeviceInfo, pull PullFunc, onStop func()) (Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}

	var (
		target DeviceInfo
		ok     bool
	)
	if dev.ID == DefaultID {
		target, ok = Default(h.devices)
	} else {
		idx := h.index(dev.ID)
		if ok = idx >= 0; ok {
			target = h.devices[idx]
		}
	}
	if !ok {
		return nil, fmt.Errorf("headless device %q: %w", dev.Name, ErrNoDevice)
	}

	rate := target.SampleRate
	if rate <= 0 {
		rate = DefaultHeadlessRate
	}

	s := &HeadlessStream{
		device:     target,
		sampleRate: rate,
		batchSize:  h.batchSize,
		pull:       pull,
		onStop:     onStop,
		buf:        make([]int16, h.batchSize*audio.Channels),
	}
	h.streams = append(h.streams, s)
	return s, nil
}

// Close closes every open stream
func (h *Headless) Close() error {
	h.mu.Lock()
	streams := h.streams
	h.streams = nil
	h.closed = true
	h.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
	return nil
}

// Notify registers a callback for pushed device events
func (h *Headless) Notify(fn func(Event)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notify = fn
}

// Active returns the most recently opened stream that is still open
func (h *Headless) Active() *HeadlessStream {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.streams) - 1; i >= 0; i-- {
		if !h.streams[i].Closed() {
			return h.streams[i]
		}
	}
	return nil
}

// OpenCount returns how many streams have been opened and not yet closed
func (h *Headless) OpenCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.streams {
		if !s.Closed() {
			n++
		}
	}
	return n
}

// AddDevice plugs a device in
func (h *Headless) AddDevice(dev DeviceInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if dev.IsDefault {
		h.clearDefault()
	}
	h.devices = append(h.devices, dev)
}

// Disconnect unplugs a device. Streams on it stop as a real driver would
// and a DeviceLost event is pushed. If the default was removed the first
// remaining device becomes default.
func (h *Headless) Disconnect(id DeviceID) {
	h.mu.Lock()
	idx := h.index(id)
	if idx < 0 {
		h.mu.Unlock()
		return
	}
	wasDefault := h.devices[idx].IsDefault
	h.devices = slices.Delete(h.devices, idx, idx+1)
	if wasDefault && len(h.devices) > 0 {
		h.devices[0].IsDefault = true
	}

	var stopped []*HeadlessStream
	for _, s := range h.streams {
		if s.device.ID == id && !s.Closed() {
			stopped = append(stopped, s)
		}
	}
	notify := h.notify
	h.mu.Unlock()

	for _, s := range stopped {
		s.stop()
	}
	if notify != nil {
		notify(Event{Kind: DeviceLost, ID: id})
	}
}

// SetFormat changes a device's native rate and pushes DeviceChanged
func (h *Headless) SetFormat(id DeviceID, sampleRate int) {
	h.mu.Lock()
	idx := h.index(id)
	if idx < 0 {
		h.mu.Unlock()
		return
	}
	h.devices[idx].SampleRate = sampleRate
	notify := h.notify
	h.mu.Unlock()

	if notify != nil {
		notify(Event{Kind: DeviceChanged, ID: id})
	}
}

// SetDefault moves the system default to id
func (h *Headless) SetDefault(id DeviceID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if idx := h.index(id); idx >= 0 {
		h.clearDefault()
		h.devices[idx].IsDefault = true
	}
}

func (h *Headless) clearDefault() {
	for i := range h.devices {
		h.devices[i].IsDefault = false
	}
}

func (h *Headless) index(id DeviceID) int {
	return slices.IndexFunc(h.devices, func(d DeviceInfo) bool { return d.ID == id })
}

// HeadlessStream is one open headless stream
type HeadlessStream struct {
	mu         sync.Mutex
	device     DeviceInfo
	sampleRate int
	batchSize  int
	pull       PullFunc
	onStop     func()
	buf        []int16
	pulls      int
	closed     bool
}

func (s *HeadlessStream) SampleRate() int { return s.sampleRate }
func (s *HeadlessStream) BatchSize() int  { return s.batchSize }

// Device returns the device the stream was opened on
func (s *HeadlessStream) Device() DeviceInfo {
	return s.device
}

// Pull runs the pull callback for frames frames and returns the samples.
// The returned slice is reused by the next Pull.
func (s *HeadlessStream) Pull(frames int) []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	n := frames * audio.Channels
	if len(s.buf) < n {
		s.buf = make([]int16, n)
	}
	out := s.buf[:n]
	s.pull(out)
	s.pulls++
	return out
}

// Pulls returns how many times the callback has run
func (s *HeadlessStream) Pulls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulls
}

// Run pulls one batch per batch period until ctx is done or the stream closes
func (s *HeadlessStream) Run(ctx context.Context) {
	period := time.Duration(s.batchSize) * time.Second / time.Duration(s.sampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Closed() {
				return
			}
			s.Pull(s.batchSize)
		}
	}
}

// Closed reports whether the stream has stopped
func (s *HeadlessStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// stop ends the stream as a driver-side failure, reporting it via onStop
func (s *HeadlessStream) stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	onStop := s.onStop
	s.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}

func (s *HeadlessStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
