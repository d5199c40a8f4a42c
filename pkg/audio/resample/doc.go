// ABOUTME: Band-limited resampling package
// ABOUTME: Converts emulator step events into device-rate PCM without aliasing
// Package resample converts the output of an emulated sound chip into PCM at
// the audio device's rate.
//
// Instead of absolute samples the Resampler is fed deltas: the change of the
// instantaneous output at a given input clock. Each delta is spread over 16
// output samples through a band-limited step kernel, so unchanged stretches of
// input cost nothing and the conversion is free of aliasing.
//
//	r := resample.New(4000)
//	r.SetRates(2097152, 48000)
//	r.AddDelta(12, 1000, 1000)
//	r.EndFrame(35112)
//	n := r.ReadSamples(out, 100)
//
// All hot-path arithmetic is integer fixed-point. Floating point is only used
// by SetRates and when the kernel and volume tables are built at init.
package resample
