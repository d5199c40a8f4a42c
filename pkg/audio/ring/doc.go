// ABOUTME: Ring buffer package
// ABOUTME: Lock-guarded stereo frame FIFO between producer and device callback
// Package ring provides the frame FIFO that sits between the resampler and
// the audio device.
//
// The writer never blocks: frames that do not fit are dropped and counted.
// The reader never sees stale data: a short read is padded with silence.
//
// Example:
//
//	buf := ring.New(4800, 2400)
//	buf.Write(pcm)
//	buf.Read(deviceOut)
package ring
