// ABOUTME: Audio output backend interfaces
// ABOUTME: Devices, pull-driven streams and hotplug events shared by all backends
package output

import "errors"

// DefaultDeviceName is the user-facing name that selects the system default device
const DefaultDeviceName = "Default"

// DefaultID is the logical identity of "whatever the system default is".
// Events carrying DefaultID refer to the default route, not a specific device.
const DefaultID DeviceID = ""

var (
	// ErrNoDevice is returned when no playback device can be opened
	ErrNoDevice = errors.New("no audio output device available")

	// ErrClosed is returned when a closed backend or stream is used
	ErrClosed = errors.New("audio output closed")
)

// DeviceID is a backend-specific stable device identifier
type DeviceID string

// DeviceInfo describes one playback device
type DeviceInfo struct {
	ID        DeviceID
	Name      string
	IsDefault bool

	// SampleRate is the native rate if the backend can report it before
	// opening, otherwise zero
	SampleRate int
}

// PullFunc fills out with interleaved stereo int16 frames. It runs on the
// device thread and must neither block nor allocate.
type PullFunc func(out []int16)

// Stream is one running playback stream
type Stream interface {
	// SampleRate is the negotiated native rate in Hz
	SampleRate() int

	// BatchSize is the preferred number of frames per pull
	BatchSize() int

	Close() error
}

// Backend is an audio API able to enumerate and open playback devices.
// Open must start the stream unpaused. onStop is called from any goroutine
// if the device stops without Close being called first.
type Backend interface {
	Name() string
	Devices() ([]DeviceInfo, error)
	Open(dev DeviceInfo, pull PullFunc, onStop func()) (Stream, error)
	Close() error
}

// EventKind classifies device notifications
type EventKind int

const (
	// DeviceLost means the device disappeared or stopped unexpectedly
	DeviceLost EventKind = iota

	// DeviceChanged means the device's format changed or the default route moved
	DeviceChanged
)

func (k EventKind) String() string {
	switch k {
	case DeviceLost:
		return "lost"
	case DeviceChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// Event is a hotplug or format notification about one device
type Event struct {
	Kind EventKind
	ID   DeviceID

	// Tag is the binding instance that raised the event, empty for
	// events coming from the platform or a Watcher
	Tag string
}

// Notifier is implemented by backends that push device events themselves
// instead of relying on a polling Watcher.
type Notifier interface {
	Notify(fn func(Event))
}

// Default picks the default device from a list, falling back to the first
func Default(devices []DeviceInfo) (DeviceInfo, bool) {
	for _, d := range devices {
		if d.IsDefault {
			return d, true
		}
	}
	if len(devices) > 0 {
		return devices[0], true
	}
	return DeviceInfo{}, false
}

// Find looks a device up by display name
func Find(devices []DeviceInfo, name string) (DeviceInfo, bool) {
	for _, d := range devices {
		if d.Name == name {
			return d, true
		}
	}
	return DeviceInfo{}, false
}
