// ABOUTME: Audio decoder package for file-backed PCM sources
// ABOUTME: Provides Reader interface and implementations for MP3, WAV, FLAC, Opus and raw PCM
// Package decode turns audio files into interleaved stereo int16 streams.
//
// Supports: MP3, WAV (8, 16, 24 and 32-bit PCM), FLAC, Ogg Opus (always
// 48kHz), raw 16-bit little-endian
//
// Mono sources are duplicated to both channels.
//
// Example:
//
//	r, err := decode.Open("track.mp3")
//	buf := make([]int16, 4096)
//	n, err := r.Read(buf)
package decode
