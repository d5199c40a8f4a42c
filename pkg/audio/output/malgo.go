// ABOUTME: Malgo-based playback backend
// ABOUTME: Uses miniaudio via malgo for device enumeration, native rates and stop detection
package output

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/harperreed/emusync/pkg/audio"
)

// DefaultPeriodMs is the device period requested from miniaudio
const DefaultPeriodMs = 10

// Malgo backend implementation using malgo/miniaudio library
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	ids      map[DeviceID]malgo.DeviceID
	periodMs int
	closed   bool
}

// NewMalgo creates a malgo backend. periodMs <= 0 selects DefaultPeriodMs.
func NewMalgo(periodMs int) *Malgo {
	if periodMs <= 0 {
		periodMs = DefaultPeriodMs
	}
	return &Malgo{
		ids:      make(map[DeviceID]malgo.DeviceID),
		periodMs: periodMs,
	}
}

// Name returns the backend name
func (m *Malgo) Name() string {
	return "malgo"
}

// context lazily creates the miniaudio context (must hold m.mu)
func (m *Malgo) context() (*malgo.AllocatedContext, error) {
	if m.closed {
		return nil, ErrClosed
	}
	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}
	return m.malgoCtx, nil
}

// Devices lists playback devices
func (m *Malgo) Devices() ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		id := DeviceID(infos[i].ID.String())
		m.ids[id] = infos[i].ID
		devices = append(devices, DeviceInfo{
			ID:        id,
			Name:      infos[i].Name(),
			IsDefault: infos[i].IsDefault != 0,
		})
	}
	return devices, nil
}

// Open starts a stereo S16 stream on dev at its native rate
func (m *Malgo) Open(dev DeviceInfo, pull PullFunc, onStop func()) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = audio.Channels
	// Zero asks miniaudio for the device's native rate
	deviceConfig.SampleRate = uint32(dev.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = uint32(m.periodMs)
	deviceConfig.Alsa.NoMMap = 1

	if dev.ID != DefaultID {
		id, ok := m.ids[dev.ID]
		if !ok {
			return nil, fmt.Errorf("unknown malgo device %q: %w", dev.Name, ErrNoDevice)
		}
		deviceConfig.Playback.DeviceID = id.Pointer()
	}

	s := &malgoStream{pull: pull, onStop: onStop}

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			s.dataCallback(pOutputSample, frameCount)
		},
		Stop: s.stopCallback,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}

	s.device = device
	s.sampleRate = int(device.SampleRate())
	s.batchSize = s.sampleRate * m.periodMs / 1000
	// Sized for several periods so the callback never allocates in practice
	s.scratch = make([]int16, s.batchSize*audio.Channels*4)

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("failed to start device: %w", err)
	}

	log.Printf("Audio output initialized: %q %dHz, %d channels (malgo/S16)",
		dev.Name, s.sampleRate, audio.Channels)

	return s, nil
}

// Close releases the miniaudio context
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

type malgoStream struct {
	device     *malgo.Device
	sampleRate int
	batchSize  int
	pull       PullFunc
	onStop     func()
	scratch    []int16
	closing    atomic.Bool
	closeOnce  sync.Once
}

func (s *malgoStream) SampleRate() int { return s.sampleRate }
func (s *malgoStream) BatchSize() int  { return s.batchSize }

// dataCallback is called by malgo to fill the audio output buffer
func (s *malgoStream) dataCallback(pOutput []byte, frameCount uint32) {
	n := int(frameCount) * audio.Channels
	if len(s.scratch) < n {
		s.scratch = make([]int16, n)
	}
	samples := s.scratch[:n]
	s.pull(samples)
	audio.PutInt16LE(pOutput, samples)
}

// stopCallback fires on every stop, including our own, so only report
// stops that Close did not initiate
func (s *malgoStream) stopCallback() {
	if s.closing.Load() {
		return
	}
	if s.onStop != nil {
		s.onStop()
	}
}

func (s *malgoStream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if err := s.device.Stop(); err != nil {
			log.Printf("Warning: device stop error: %v", err)
		}
		s.device.Uninit()
	})
	return nil
}
