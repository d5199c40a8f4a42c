//go:build portaudio

// ABOUTME: PortAudio playback backend
// ABOUTME: Cross-platform device enumeration and callback streams using PortAudio
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/harperreed/emusync/pkg/audio"
)

// PortAudio backend implementation
type PortAudio struct {
	mu          sync.Mutex
	initialized bool
	devices     map[DeviceID]*portaudio.DeviceInfo
}

// NewPortAudio creates a PortAudio backend
func NewPortAudio() Backend {
	return &PortAudio{devices: make(map[DeviceID]*portaudio.DeviceInfo)}
}

// Name returns the backend name
func (p *PortAudio) Name() string {
	return "portaudio"
}

func (p *PortAudio) init() error {
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	p.initialized = true
	return nil
}

func portAudioID(d *portaudio.DeviceInfo) DeviceID {
	if d.HostApi != nil {
		return DeviceID(d.HostApi.Name + "/" + d.Name)
	}
	return DeviceID(d.Name)
}

// Devices lists output-capable devices
func (p *PortAudio) Devices() ([]DeviceInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.init(); err != nil {
		return nil, err
	}

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate portaudio devices: %w", err)
	}

	var defaultID DeviceID
	if def, err := portaudio.DefaultOutputDevice(); err == nil {
		defaultID = portAudioID(def)
	}

	var devices []DeviceInfo
	for _, d := range all {
		if d.MaxOutputChannels < audio.Channels {
			continue
		}
		id := portAudioID(d)
		p.devices[id] = d
		devices = append(devices, DeviceInfo{
			ID:         id,
			Name:       d.Name,
			IsDefault:  id == defaultID,
			SampleRate: int(d.DefaultSampleRate),
		})
	}
	return devices, nil
}

// Open starts a callback stream on dev
func (p *PortAudio) Open(dev DeviceInfo, pull PullFunc, onStop func()) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.init(); err != nil {
		return nil, err
	}

	var info *portaudio.DeviceInfo
	if dev.ID == DefaultID {
		def, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default output device: %w", ErrNoDevice)
		}
		info = def
	} else {
		d, ok := p.devices[dev.ID]
		if !ok {
			return nil, fmt.Errorf("unknown portaudio device %q: %w", dev.Name, ErrNoDevice)
		}
		info = d
	}

	params := portaudio.LowLatencyParameters(nil, info)
	params.Output.Channels = audio.Channels
	params.SampleRate = info.DefaultSampleRate
	batch := int(params.SampleRate * params.Output.Latency.Seconds())
	if batch <= 0 {
		batch = int(params.SampleRate) / 100
	}
	params.FramesPerBuffer = batch

	stream, err := portaudio.OpenStream(params, func(out []int16) {
		pull(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	log.Printf("Audio output initialized: %q %dHz, %d channels (portaudio)",
		info.Name, int(params.SampleRate), audio.Channels)

	return &portAudioStream{
		stream:     stream,
		sampleRate: int(params.SampleRate),
		batchSize:  batch,
	}, nil
}

// Close terminates PortAudio
func (p *PortAudio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil
	}
	p.initialized = false
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream     *portaudio.Stream
	sampleRate int
	batchSize  int
	once       sync.Once
}

func (s *portAudioStream) SampleRate() int { return s.sampleRate }
func (s *portAudioStream) BatchSize() int  { return s.batchSize }

func (s *portAudioStream) Close() error {
	var err error
	s.once.Do(func() {
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
