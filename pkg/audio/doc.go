// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the stereo int16 frame layout shared by every stage
// Package audio provides the PCM conventions used throughout emusync.
//
// All stages exchange interleaved stereo signed 16-bit samples:
//
//	[L0 R0 L1 R1 ...]
//
// Subpackages:
//   - resample: band-limited delta resampler (emulator rate -> device rate)
//   - ring: jitter-absorbing ring buffer between emulation and device threads
//   - output: device bindings (malgo, oto, portaudio, headless)
//   - decode: PCM sources used by the test harness (MP3, WAV, raw)
//   - encode: WAV and raw writers for offline renders
package audio
