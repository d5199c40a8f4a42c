// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels back to the app
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// CommandKind identifies a control change requested from the TUI
type CommandKind int

const (
	CmdVolume CommandKind = iota
	CmdLatency
	CmdDevice
	CmdSpeed
	CmdPause
)

// Command is a control change. Value carries volume, latency, speed or
// 1/0 for pause; Device carries the device name.
type Command struct {
	Kind   CommandKind
	Value  int
	Device string
}

// Controls holds channels for communication with the app
type Controls struct {
	Commands chan Command
	Quit     chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 16),
		Quit:     make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model with the given starting values
func NewModel(ctrl *Controls, volume, latencyMs int) Model {
	return Model{
		volume:    volume,
		latencyMs: latencyMs,
		speed:     1,
		device:    DefaultDevice,
		controls:  ctrl,
	}
}

// Run creates the TUI program
func Run(ctrl *Controls, volume, latencyMs int) *tea.Program {
	return tea.NewProgram(NewModel(ctrl, volume, latencyMs), tea.WithAltScreen())
}
