// ABOUTME: Emulation pacing package
// ABOUTME: Paces emulated cycles against the wall clock
// Package sync paces an emulation loop to real time.
//
// Timing is kept in 16-bit fixed-point nanoseconds. Over- and under-sleep
// is carried to the next call, bounded by a maximum carry, so scheduler
// jitter averages out without runaway catch-up after a stall.
//
// Example:
//
//	th := sync.NewThrottle(nil)
//	for {
//		cycles := core.RunFrame()
//		th.Throttle(cycles, speed, 4194304)
//	}
package sync
