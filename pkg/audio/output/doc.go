// ABOUTME: Audio output package for pull-driven playback
// ABOUTME: Backends, device bindings and hotplug watching
// Package output opens playback devices and drives a pull callback from
// the device thread.
//
// Supported backends are malgo (miniaudio), oto, PortAudio (build with
// -tags portaudio) and a headless backend for tests and offline use.
//
// Example:
//
//	backend := output.NewMalgo(0)
//	b, err := output.Open(backend, output.DefaultDeviceName, func(out []int16) {
//		ring.Read(out)
//	}, onEvent)
//	rate := b.SampleRate()
package output
