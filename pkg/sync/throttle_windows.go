//go:build windows

// ABOUTME: Windows timer resolution for the throttle
// ABOUTME: Requests 1ms scheduler granularity from winmm so sleeps stay short
package sync

import (
	"log"

	"golang.org/x/sys/windows"
)

func raiseTimerResolution() {
	proc := windows.NewLazySystemDLL("winmm.dll").NewProc("timeBeginPeriod")
	if err := proc.Find(); err != nil {
		log.Printf("Throttle: winmm unavailable, sleeps may overshoot: %v", err)
		return
	}
	if r, _, _ := proc.Call(1); r != 0 {
		log.Printf("Throttle: timeBeginPeriod(1) failed with %d", r)
	}
}
