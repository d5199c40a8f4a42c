// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling and the commands sent to the app
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(t *testing.T, m Model, key string) Model {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func drain(ctrl *Controls) []Command {
	var cmds []Command
	for {
		select {
		case c := <-ctrl.Commands:
			cmds = append(cmds, c)
		default:
			return cmds
		}
	}
}

func TestNewModel(t *testing.T) {
	m := NewModel(nil, 80, 64)

	assert.Equal(t, 80, m.volume)
	assert.Equal(t, 64, m.latencyMs)
	assert.Equal(t, 1, m.speed)
	assert.Equal(t, DefaultDevice, m.device)
	assert.False(t, m.paused)
	assert.False(t, m.showDebug)
}

func TestVolumeKeys(t *testing.T) {
	ctrl := NewControls()
	m := NewModel(ctrl, 97, 64)

	m = press(t, m, "up")
	assert.Equal(t, 100, m.volume, "clamped at unity")
	m = press(t, m, "down")
	assert.Equal(t, 95, m.volume)

	assert.Equal(t, []Command{
		{Kind: CmdVolume, Value: 100},
		{Kind: CmdVolume, Value: 95},
	}, drain(ctrl))

	m = NewModel(ctrl, 3, 64)
	m = press(t, m, "down")
	assert.Equal(t, 0, m.volume)
	assert.Contains(t, m.View(), "muted")
}

func TestLatencyKeys(t *testing.T) {
	ctrl := NewControls()
	m := NewModel(ctrl, 100, 20)

	m = press(t, m, "left")
	assert.Equal(t, minLatencyMs, m.latencyMs)
	m = press(t, m, "right")
	assert.Equal(t, minLatencyMs+latencyStep, m.latencyMs)

	cmds := drain(ctrl)
	require.Len(t, cmds, 2)
	assert.Equal(t, CmdLatency, cmds[1].Kind)
	assert.Equal(t, 32, cmds[1].Value)
}

func TestDeviceCycle(t *testing.T) {
	ctrl := NewControls()
	m := NewModel(ctrl, 100, 64)
	m.applyStatus(StatusMsg{Devices: []string{"Speakers", "USB DAC"}})

	var seen []string
	for i := 0; i < 4; i++ {
		m = press(t, m, "d")
		seen = append(seen, m.device)
	}
	assert.Equal(t, []string{"Speakers", "USB DAC", DefaultDevice, "Speakers"}, seen)

	cmds := drain(ctrl)
	require.Len(t, cmds, 4)
	assert.Equal(t, Command{Kind: CmdDevice, Device: "Speakers"}, cmds[0])
}

func TestDeviceCycleFromUnknownName(t *testing.T) {
	m := NewModel(nil, 100, 64)
	m.device = "Gone"
	m.devices = []string{"Speakers"}

	m = press(t, m, "d")
	assert.Equal(t, DefaultDevice, m.device)
}

func TestSpeedAndPause(t *testing.T) {
	ctrl := NewControls()
	m := NewModel(ctrl, 100, 64)

	m = press(t, m, "4")
	assert.Equal(t, 4, m.speed)
	m = press(t, m, " ")
	assert.True(t, m.paused)
	assert.Contains(t, m.View(), "paused")
	m = press(t, m, "p")
	assert.False(t, m.paused)

	assert.Equal(t, []Command{
		{Kind: CmdSpeed, Value: 4},
		{Kind: CmdPause, Value: 1},
		{Kind: CmdPause, Value: 0},
	}, drain(ctrl))
}

func TestQuitSignalsApp(t *testing.T) {
	ctrl := NewControls()
	m := NewModel(ctrl, 100, 64)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, next.(Model).quitting)

	select {
	case <-ctrl.Quit:
	default:
		t.Fatal("expected quit signal")
	}
}

func TestKeysWithoutControls(t *testing.T) {
	m := NewModel(nil, 50, 64)
	m = press(t, m, "up")
	m = press(t, m, "d")
	assert.Equal(t, 55, m.volume)
}

func TestApplyStatus(t *testing.T) {
	m := NewModel(nil, 100, 64)
	attached := true

	m.applyStatus(StatusMsg{
		BoundDevice:  "Speakers",
		Attached:     &attached,
		SampleRate:   48000,
		BatchSize:    480,
		InputRate:    2097152,
		RingUsed:     3000,
		RingCapacity: 11264,
		TargetFrames: 3072,
		Resyncs:      2,
		Dropped:      10,
		Frames:       600,
	})

	assert.Equal(t, "Speakers", m.boundDevice)
	assert.True(t, m.attached)
	assert.Equal(t, 48000, m.sampleRate)
	assert.Equal(t, 480, m.batchSize)
	assert.Equal(t, 11264, m.ringCapacity)
	assert.Equal(t, uint64(2), m.resyncs)
	assert.Equal(t, uint64(10), m.dropped)
	assert.Equal(t, uint64(600), m.frames)

	// Partial update keeps earlier values
	m.applyStatus(StatusMsg{Volume: 40})
	assert.Equal(t, 40, m.volume)
	assert.Equal(t, 48000, m.sampleRate)
	assert.Equal(t, "Speakers", m.boundDevice)

	view := m.View()
	assert.Contains(t, view, "Speakers")
	assert.Contains(t, view, "48000 Hz")
	assert.Contains(t, view, "3000/11264")
}

func TestViewDetached(t *testing.T) {
	m := NewModel(nil, 100, 64)
	assert.Contains(t, m.View(), "no device")
}

func TestDebugToggle(t *testing.T) {
	m := NewModel(nil, 100, 64)
	m.applyStatus(StatusMsg{Goroutines: 7, MemAlloc: 3 << 20})

	assert.NotContains(t, m.View(), "goroutines")
	m = press(t, m, "i")
	assert.True(t, m.showDebug)
	assert.Contains(t, m.View(), "7 goroutines")
	assert.Contains(t, m.View(), "3.0 MiB")
}

func TestRenderBar(t *testing.T) {
	assert.Equal(t, strings.Repeat("░", 10), renderBar(0, 100, 10))
	assert.Equal(t, strings.Repeat("█", 5)+strings.Repeat("░", 5), renderBar(50, 100, 10))
	assert.Equal(t, strings.Repeat("█", 10), renderBar(150, 100, 10))
	assert.Equal(t, strings.Repeat("░", 4), renderBar(5, 0, 4))
}
