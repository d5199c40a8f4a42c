//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package output

import (
	"fmt"
)

var errPortAudioDisabled = fmt.Errorf("PortAudio support not enabled (build with -tags portaudio): %w", ErrNoDevice)

// PortAudio backend implementation (stub)
type PortAudio struct{}

// NewPortAudio creates a PortAudio backend
func NewPortAudio() Backend {
	return &PortAudio{}
}

// Name returns the backend name
func (p *PortAudio) Name() string {
	return "portaudio"
}

// Devices always fails without the portaudio build tag
func (p *PortAudio) Devices() ([]DeviceInfo, error) {
	return nil, errPortAudioDisabled
}

// Open always fails without the portaudio build tag
func (p *PortAudio) Open(dev DeviceInfo, pull PullFunc, onStop func()) (Stream, error) {
	return nil, errPortAudioDisabled
}

// Close releases resources
func (p *PortAudio) Close() error {
	return nil
}
