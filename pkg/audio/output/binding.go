// ABOUTME: Device binding that owns one open playback stream
// ABOUTME: Resolves device names, falls back to the default and reports unexpected stops
package output

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"
)

// Binding owns one stream on one device. The caller sees only the native
// rate and batch size; the pull callback is the only path into the caller.
type Binding struct {
	backend   Backend
	stream    Stream
	device    DeviceInfo
	isDefault bool
	tag       string
	events    func(Event)
	closed    atomic.Bool
}

// Open resolves name against backend's devices and starts a stream on it.
// An empty name or DefaultDeviceName selects the system default, as does
// a name that is no longer listed or fails to open. events receives
// DeviceLost if the stream stops without Close; it may be nil.
func Open(backend Backend, name string, pull PullFunc, events func(Event)) (*Binding, error) {
	devices, err := backend.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s devices: %w", backend.Name(), err)
	}

	b := &Binding{
		backend: backend,
		tag:     uuid.NewString(),
		events:  events,
	}

	if name != "" && name != DefaultDeviceName {
		if dev, ok := Find(devices, name); ok {
			err := b.start(dev, pull)
			if err == nil {
				return b, nil
			}
			log.Printf("Audio device %q failed to open, using default: %v", name, err)
		} else {
			log.Printf("Audio device %q not found, using default", name)
		}
	}

	def, ok := Default(devices)
	if !ok {
		def = DeviceInfo{ID: DefaultID, Name: DefaultDeviceName, IsDefault: true}
	}
	// Open the default route rather than the concrete device so backends
	// that follow the system default keep doing so
	route := DeviceInfo{ID: DefaultID, Name: def.Name, IsDefault: true, SampleRate: def.SampleRate}
	if err := b.start(route, pull); err != nil {
		if errors.Is(err, ErrNoDevice) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	b.device.ID = def.ID
	return b, nil
}

func (b *Binding) start(dev DeviceInfo, pull PullFunc) error {
	stream, err := b.backend.Open(dev, pull, b.stopped)
	if err != nil {
		return err
	}
	b.stream = stream
	b.device = dev
	b.isDefault = dev.ID == DefaultID
	log.Printf("Audio binding %s: %q at %dHz, batch %d", b.tag[:8], dev.Name, stream.SampleRate(), stream.BatchSize())
	return nil
}

// stopped runs on the backend's thread when the stream dies
func (b *Binding) stopped() {
	if b.closed.Load() {
		return
	}
	log.Printf("Audio binding %s: device %q stopped unexpectedly", b.tag[:8], b.device.Name)
	if b.events != nil {
		b.events(Event{Kind: DeviceLost, ID: b.device.ID, Tag: b.tag})
	}
}

// Matches reports whether id refers to the bound device. A binding on
// the default route also matches DefaultID.
func (b *Binding) Matches(id DeviceID) bool {
	return id == b.device.ID || (b.isDefault && id == DefaultID)
}

// SampleRate returns the device's native rate
func (b *Binding) SampleRate() int {
	return b.stream.SampleRate()
}

// BatchSize returns the device's preferred frames per pull
func (b *Binding) BatchSize() int {
	return b.stream.BatchSize()
}

// Device returns the resolved device
func (b *Binding) Device() DeviceInfo {
	return b.device
}

// IsDefault reports whether the binding follows the system default
func (b *Binding) IsDefault() bool {
	return b.isDefault
}

// Tag returns the binding's instance tag
func (b *Binding) Tag() string {
	return b.tag
}

// Close stops the stream without reporting a loss
func (b *Binding) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	if err := b.stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	return nil
}
