// ABOUTME: Emulator audio pipeline library API
// ABOUTME: Entry point for feeding core audio to a real-time device
// Package emusync connects a variable-rate emulation core to a fixed-rate
// audio device.
//
// Each emulated frame the driver calls DispatchAudio with the frame's
// stereo samples and then paces itself with sync.Throttle. The pipeline
// band-limits the samples to the device rate, buffers them at the target
// latency and resyncs when the buffer drifts too far. Device loss and
// format changes are recovered by reopening, never surfaced as errors.
//
// Example:
//
//	p, err := emusync.New(emusync.DefaultConfig(output.NewMalgo(0), 2097152))
//	go func() {
//	    for e := range p.Events() {
//	        p.HandleDeviceEvent(e)
//	    }
//	}()
//	for {
//	    frame := core.Step()
//	    p.DispatchAudio(frame.Samples, false)
//	    throttle.Throttle(frame.Cycles, 1, core.CPUFrequency())
//	}
package emusync
