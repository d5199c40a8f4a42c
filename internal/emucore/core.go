// ABOUTME: Emulation core interface consumed by the driver loop
// ABOUTME: One Step advances one video frame and returns its cycles and audio
package emucore

// Frame is the output of one emulated video frame
type Frame struct {
	// Cycles is the number of CPU cycles the frame took
	Cycles uint32

	// Samples is interleaved stereo PCM at the core's sample rate. It is
	// only valid until the next Step.
	Samples []int16
}

// Core is the emulator adapter the driver loop runs
type Core interface {
	// Step executes one frame of emulation
	Step() (Frame, error)

	// SampleRate returns the audio clock of Frame.Samples in Hz
	SampleRate() int

	// CPUFrequency returns the clock Frame.Cycles is counted in
	CPUFrequency() uint64

	// Close releases any resources held by the core
	Close() error
}
