//go:build !windows

// ABOUTME: Timer resolution hook for platforms with fine-grained sleep
// ABOUTME: Nothing to raise outside Windows
package sync

func raiseTimerResolution() {}
