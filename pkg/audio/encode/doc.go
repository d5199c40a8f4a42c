// ABOUTME: Audio encoder package for writing rendered PCM
// ABOUTME: Provides the Encoder interface with WAV, raw PCM and metering implementations
// Package encode writes interleaved stereo int16 audio.
//
// Supports: WAV (16-bit), raw s16le, and a pass-through level meter.
//
// Example:
//
//	enc, err := encode.Create("out.wav", 48000)
//	meter := encode.NewMeter(enc)
//	err = meter.Write(samples)
//	err = meter.Close()
package encode
