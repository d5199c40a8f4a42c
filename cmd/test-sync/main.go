// ABOUTME: Test app to measure throttle accuracy on this machine
// ABOUTME: Runs the frame throttle against the wall clock and reports drift
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/harperreed/emusync/internal/emucore"
	"github.com/harperreed/emusync/pkg/sync"
)

var (
	frames = flag.Int("frames", 600, "Frames to run")
	cycles = flag.Uint("cycles", emucore.ToneCyclesPerFrame, "CPU cycles per frame")
	freq   = flag.Uint64("freq", emucore.ToneCPUFrequency, "CPU frequency in Hz")
	speed  = flag.Uint("speed", 1, "Speed multiplier")
	work   = flag.Duration("work", 2*time.Millisecond, "Simulated emulation time per frame")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	perFrame := time.Duration(float64(*cycles) / float64(*freq) / float64(*speed) * float64(time.Second))
	fmt.Println("=== Throttle Test App ===")
	fmt.Printf("%d frames of %d cycles at %d Hz, %dx speed (%v per frame)\n",
		*frames, *cycles, *freq, *speed, perFrame)
	fmt.Println()

	throttle := sync.NewThrottle(nil)

	start := time.Now()
	var worst time.Duration
	for i := 1; i <= *frames; i++ {
		busyWait(*work)
		throttle.Throttle(uint32(*cycles), uint32(*speed), *freq)

		drift := time.Since(start) - time.Duration(i)*perFrame
		if abs(drift) > abs(worst) {
			worst = drift
		}
		if i%60 == 0 {
			log.Printf("frame %4d: drift %+v", i, drift.Round(time.Microsecond))
		}
	}

	elapsed := time.Since(start)
	ideal := time.Duration(*frames) * perFrame
	stats := throttle.Stats()

	fmt.Println()
	fmt.Printf("Elapsed %v, ideal %v, final drift %+v, worst %+v\n",
		elapsed.Round(time.Microsecond), ideal.Round(time.Microsecond),
		(elapsed - ideal).Round(time.Microsecond), worst.Round(time.Microsecond))
	fmt.Printf("Sleeps %d, spins %d, carry %v\n", stats.Sleeps, stats.Spins, stats.Carry)
}

// busyWait stands in for emulating one frame
func busyWait(d time.Duration) {
	for end := time.Now().Add(d); time.Now().Before(end); {
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
