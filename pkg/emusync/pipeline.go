// ABOUTME: Audio pipeline between an emulation core and the output device
// ABOUTME: Owns resampler, ring buffer and device binding; handles resync and device recovery
package emusync

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/harperreed/emusync/pkg/audio"
	"github.com/harperreed/emusync/pkg/audio/output"
	"github.com/harperreed/emusync/pkg/audio/resample"
	"github.com/harperreed/emusync/pkg/audio/ring"
)

// DefaultDevice selects the system default output device
const DefaultDevice = output.DefaultDeviceName

const (
	DefaultLatencyMs = 64
	MinLatencyMs     = 1
	MaxLatencyMs     = 2000

	DefaultOutputBatchTolerance = 5
	DefaultInputBatchTolerance  = 3

	// DefaultEventBuffer is the device event queue length
	DefaultEventBuffer = 16

	// reopenRetry is how long to wait before retrying a failed reopen
	reopenRetry = time.Second

	// resyncLogLimit is how many resyncs are logged before going quiet
	resyncLogLimit = 5
)

// ErrClosed is returned by operations on a closed pipeline
var ErrClosed = errors.New("pipeline closed")

// Config holds pipeline configuration
type Config struct {
	// Backend opens the output device (required)
	Backend output.Backend

	// DeviceName is a device display name or DefaultDevice
	DeviceName string

	// InputRate is the core's audio clock in Hz (required)
	InputRate int

	// LatencyMs is the target ring buffer fill (0 uses DefaultLatencyMs)
	LatencyMs int

	// Volume is 0 (silent) to 100 (unity)
	Volume int

	// OutputBatchTolerance and InputBatchTolerance scale the device batch and
	// the per-dispatch batch into the allowed fill above target before a
	// resync. Zero uses the defaults.
	OutputBatchTolerance int
	InputBatchTolerance  int

	// EventBuffer is the device event queue length (0 uses DefaultEventBuffer)
	EventBuffer int
}

// DefaultConfig returns a config for the default device at full volume
func DefaultConfig(backend output.Backend, inputRate int) Config {
	return Config{
		Backend:    backend,
		DeviceName: DefaultDevice,
		InputRate:  inputRate,
		LatencyMs:  DefaultLatencyMs,
		Volume:     resample.MaxVolume,
	}
}

// Stats contains pipeline statistics
type Stats struct {
	DeviceName     string // requested name or DefaultDevice
	BoundDevice    string // resolved device display name
	SampleRate     int
	BatchSize      int
	InputRate      int
	LatencyMs      int
	Volume         int
	TargetFrames   int
	RingCapacity   int
	RingUsed       int
	Resyncs        uint64
	Reopens        uint64
	Dropped        uint64
	Underruns      uint64
	Allocations    uint64
	EventsDropped  uint64
	DeviceAttached bool
}

// Pipeline resamples core audio into a ring buffer that the device drains.
//
// DispatchAudio runs on the emulation goroutine, the pull callback on the
// device thread and the setters on a control goroutine. One mutex covers
// configuration, the resampler and ring resets; the ring has its own lock
// for the copies the device thread makes.
type Pipeline struct {
	mu sync.Mutex

	backend output.Backend
	binding *output.Binding

	deviceName string
	inputRate  int
	latencyMs  int
	volume     int
	outTol     int
	inTol      int

	resampler *resample.Resampler
	ring      *ring.Buffer
	scratch   []int16

	prevLeft  int32
	prevRight int32

	sampleRate   int
	batchSize    int
	targetFrames int
	inputBatch   int

	retryAt     time.Time
	allocations uint64
	resyncs     uint64
	reopens     uint64
	closed      bool

	eventsMu      sync.Mutex
	events        chan output.Event
	eventsClosed  bool
	eventsDropped uint64
}

// New opens the configured device and sizes the pipeline from its native
// rate. Failing to open any device is fatal.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("no audio backend configured")
	}
	if cfg.InputRate <= 0 {
		return nil, fmt.Errorf("invalid input rate: %d", cfg.InputRate)
	}
	if cfg.LatencyMs == 0 {
		cfg.LatencyMs = DefaultLatencyMs
	}
	if cfg.OutputBatchTolerance <= 0 {
		cfg.OutputBatchTolerance = DefaultOutputBatchTolerance
	}
	if cfg.InputBatchTolerance <= 0 {
		cfg.InputBatchTolerance = DefaultInputBatchTolerance
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = DefaultDevice
	}

	p := &Pipeline{
		backend:    cfg.Backend,
		deviceName: cfg.DeviceName,
		inputRate:  cfg.InputRate,
		latencyMs:  clampLatency(cfg.LatencyMs),
		volume:     clampVolume(cfg.Volume),
		outTol:     cfg.OutputBatchTolerance,
		inTol:      cfg.InputBatchTolerance,
		ring:       ring.New(2, 0),
		events:     make(chan output.Event, cfg.EventBuffer),
	}

	binding, err := output.Open(p.backend, p.deviceName, p.pull, p.Post)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	p.binding = binding

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.reset(); err != nil {
		binding.Close()
		return nil, err
	}
	return p, nil
}

// pull runs on the device thread; it only touches the ring's own lock
func (p *Pipeline) pull(out []int16) {
	p.ring.Read(out)
}

// reset re-derives sizes from the bound device and restarts playback at
// the target latency (must hold p.mu)
func (p *Pipeline) reset() error {
	if p.binding != nil {
		p.sampleRate = p.binding.SampleRate()
		p.batchSize = p.binding.BatchSize()
	}
	if p.sampleRate <= 0 {
		return fmt.Errorf("device reported invalid sample rate %d", p.sampleRate)
	}

	capacity := min(p.sampleRate/10, resample.MaxCapacity)
	if p.resampler == nil || p.resampler.Capacity() != capacity {
		p.resampler = resample.New(capacity)
		p.scratch = make([]int16, capacity*audio.Channels)
		p.allocations++
	}
	if err := p.resampler.SetRates(float64(p.inputRate), float64(p.sampleRate)); err != nil {
		return fmt.Errorf("failed to configure resampler: %w", err)
	}
	p.resampler.Clear()
	p.prevLeft, p.prevRight = 0, 0

	p.targetFrames = p.sampleRate * p.latencyMs / 1000
	inputBatch := p.inputBatch
	if inputBatch == 0 {
		// Until the first dispatch assume one video frame of audio
		inputBatch = p.sampleRate / 60
	}
	tolerance := p.tolerance(inputBatch)
	p.ring.Reset(2*p.targetFrames+2*tolerance, p.targetFrames)
	return nil
}

func (p *Pipeline) tolerance(inputBatch int) int {
	return max(p.outTol*p.batchSize, p.inTol*inputBatch)
}

// DispatchAudio feeds one emulated frame of interleaved stereo samples.
// Unless fast-forwarding, a ring fill too far above target triggers a
// resync so drift never accumulates.
func (p *Pipeline) DispatchAudio(pcm []int16, fastForwarding bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	if p.binding == nil {
		p.retryReopen()
	}

	frames := len(pcm) / audio.Channels
	produced := 0
	for start := 0; start < frames; {
		// Keep every delta inside the resampler's delay line
		chunk := max(p.resampler.ClocksNeeded(p.resampler.Capacity()/2), 1)
		end := min(start+chunk, frames)

		for i := start; i < end; i++ {
			left, right := int32(pcm[i*2]), int32(pcm[i*2+1])
			p.resampler.AddDelta(uint(i-start), left-p.prevLeft, right-p.prevRight)
			p.prevLeft, p.prevRight = left, right
		}
		p.resampler.EndFrame(uint(end - start))

		n := p.resampler.ReadSamples(p.scratch, p.volume)
		p.ring.Write(p.scratch[:n*audio.Channels])
		produced += n
		start = end
	}
	p.inputBatch = produced

	if fastForwarding {
		return
	}
	if used, limit := p.ring.Used(), p.targetFrames+p.tolerance(produced); used > limit {
		p.resyncs++
		if p.resyncs <= resyncLogLimit {
			log.Printf("Audio resync #%d: buffer %d frames exceeds limit %d", p.resyncs, used, limit)
		}
		if err := p.reset(); err != nil {
			log.Printf("Audio resync failed: %v", err)
		}
	}
}

// SetLatency changes the target buffer fill
func (p *Pipeline) SetLatency(ms int) {
	ms = clampLatency(ms)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || ms == p.latencyMs {
		return
	}
	p.latencyMs = ms
	p.resetLogged("latency change")
}

// SetVolume changes the output volume (0-100)
func (p *Pipeline) SetVolume(volume int) {
	volume = clampVolume(volume)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || volume == p.volume {
		return
	}
	p.volume = volume
	p.resetLogged("volume change")
}

// SetInputAudioFrequency changes the core's audio clock
func (p *Pipeline) SetInputAudioFrequency(hz int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || hz <= 0 || hz == p.inputRate {
		return
	}
	p.inputRate = hz
	p.resetLogged("input rate change")
}

// SetAudioDevice switches to the named device, or the default for
// DefaultDevice or an unknown name
func (p *Pipeline) SetAudioDevice(name string) {
	if name == "" {
		name = DefaultDevice
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || name == p.deviceName {
		return
	}
	p.deviceName = name
	p.reopen("device switch")
}

// EnumerateAudioDevices returns DefaultDevice followed by the backend's
// device names. It has no side effects.
func (p *Pipeline) EnumerateAudioDevices() ([]string, error) {
	devices, err := p.backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate audio devices: %w", err)
	}
	names := make([]string, 0, len(devices)+1)
	names = append(names, DefaultDevice)
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names, nil
}

// RecoverLostAudioDeviceIfNeeded reopens on the system default if id is
// the bound device. Returns whether a recovery happened.
func (p *Pipeline) RecoverLostAudioDeviceIfNeeded(id output.DeviceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recoverLost(id, "")
}

// ResetAudioDeviceIfNeeded reopens the device if id is the bound device,
// picking up its new native format. Returns whether a reset happened.
func (p *Pipeline) ResetAudioDeviceIfNeeded(id output.DeviceID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resetFormat(id, "")
}

// HandleDeviceEvent routes a device event to the matching recovery path.
// Events tagged by a binding that has since been replaced are ignored.
func (p *Pipeline) HandleDeviceEvent(e output.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Kind {
	case output.DeviceLost:
		return p.recoverLost(e.ID, e.Tag)
	case output.DeviceChanged:
		return p.resetFormat(e.ID, e.Tag)
	default:
		return false
	}
}

// bound reports whether id (and tag, when set) names the current binding
// (must hold p.mu)
func (p *Pipeline) bound(id output.DeviceID, tag string) bool {
	if p.closed || p.binding == nil {
		return false
	}
	if tag != "" && p.binding.Tag() != tag {
		return false
	}
	return p.binding.Matches(id)
}

// recoverLost must hold p.mu
func (p *Pipeline) recoverLost(id output.DeviceID, tag string) bool {
	if !p.bound(id, tag) {
		return false
	}
	log.Printf("Audio device %q lost, falling back to default", p.binding.Device().Name)
	p.deviceName = DefaultDevice
	p.reopen("device lost")
	return true
}

// resetFormat must hold p.mu
func (p *Pipeline) resetFormat(id output.DeviceID, tag string) bool {
	if !p.bound(id, tag) {
		return false
	}
	p.reopen("device format change")
	return true
}

// Post queues a device event without blocking. It is safe from the
// device thread; events are dropped when the queue is full.
func (p *Pipeline) Post(e output.Event) {
	p.eventsMu.Lock()
	defer p.eventsMu.Unlock()
	if p.eventsClosed {
		return
	}
	select {
	case p.events <- e:
	default:
		p.eventsDropped++
	}
}

// Events returns the queue fed by the binding, a Watcher or a Notifier.
// It is closed by Close.
func (p *Pipeline) Events() <-chan output.Event {
	return p.events
}

// reopen replaces the binding using the current device name (must hold p.mu)
func (p *Pipeline) reopen(reason string) {
	if p.binding != nil {
		if err := p.binding.Close(); err != nil {
			log.Printf("Audio %s: closing old device: %v", reason, err)
		}
		p.binding = nil
	}

	binding, err := output.Open(p.backend, p.deviceName, p.pull, p.Post)
	if err != nil {
		log.Printf("Audio %s: no device available, retrying in %v: %v", reason, reopenRetry, err)
		p.retryAt = time.Now().Add(reopenRetry)
		return
	}
	p.binding = binding
	p.reopens++
	p.resetLogged(reason)
}

// retryReopen tries to reacquire a device after a failed reopen (must hold p.mu)
func (p *Pipeline) retryReopen() {
	if time.Now().Before(p.retryAt) {
		return
	}
	p.reopen("device retry")
}

func (p *Pipeline) resetLogged(reason string) {
	if err := p.reset(); err != nil {
		log.Printf("Audio reset after %s failed: %v", reason, err)
	}
}

// DeviceName returns the requested device name, DefaultDevice after a
// device loss
func (p *Pipeline) DeviceName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceName
}

// Device returns the bound device, and false while no device is bound
func (p *Pipeline) Device() (output.DeviceInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.binding == nil {
		return output.DeviceInfo{}, false
	}
	return p.binding.Device(), true
}

// Latency returns the target latency in milliseconds
func (p *Pipeline) Latency() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latencyMs
}

// Volume returns the current volume
func (p *Pipeline) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Allocations counts buffer allocations by the resampler and ring
func (p *Pipeline) Allocations() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocations + p.ring.Allocations()
}

// Stats returns a snapshot of pipeline statistics
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		DeviceName:   p.deviceName,
		SampleRate:   p.sampleRate,
		BatchSize:    p.batchSize,
		InputRate:    p.inputRate,
		LatencyMs:    p.latencyMs,
		Volume:       p.volume,
		TargetFrames: p.targetFrames,
		RingCapacity: p.ring.Capacity(),
		RingUsed:     p.ring.Used(),
		Resyncs:      p.resyncs,
		Reopens:      p.reopens,
		Dropped:      p.ring.Dropped(),
		Underruns:    p.ring.Underruns(),
		Allocations:  p.allocations + p.ring.Allocations(),
	}
	if p.binding != nil {
		s.BoundDevice = p.binding.Device().Name
		s.DeviceAttached = true
	}

	p.eventsMu.Lock()
	s.EventsDropped = p.eventsDropped
	p.eventsMu.Unlock()
	return s
}

// Close stops the device and closes the event queue
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	binding := p.binding
	p.binding = nil
	p.mu.Unlock()

	var err error
	if binding != nil {
		err = binding.Close()
	}

	p.eventsMu.Lock()
	p.eventsClosed = true
	close(p.events)
	p.eventsMu.Unlock()
	return err
}

func clampLatency(ms int) int {
	return min(max(ms, MinLatencyMs), MaxLatencyMs)
}

func clampVolume(v int) int {
	return min(max(v, resample.MinVolume), resample.MaxVolume)
}
