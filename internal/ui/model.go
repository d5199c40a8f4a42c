// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Shows pipeline state and turns key presses into control commands
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultDevice is the device entry that follows the system default
const DefaultDevice = "Default"

const (
	volumeStep   = 5
	latencyStep  = 16
	minLatencyMs = 16
	maxLatencyMs = 2000
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	warnStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	helpStyle   = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	// Controls
	volume    int
	latencyMs int
	speed     int
	paused    bool
	device    string
	devices   []string

	// Device
	boundDevice string
	attached    bool
	sampleRate  int
	batchSize   int
	inputRate   int

	// Stats
	ringUsed     int
	ringCapacity int
	targetFrames int
	resyncs      uint64
	reopens      uint64
	dropped      uint64
	underruns    uint64
	frames       uint64

	// Debug
	showDebug  bool
	goroutines int
	memAlloc   uint64

	controls *Controls
	quitting bool

	width  int
	height int
}

// StatusMsg updates TUI state. Zero fields leave the current value alone.
type StatusMsg struct {
	Volume       int
	LatencyMs    int
	Device       string
	Devices      []string
	BoundDevice  string
	Attached     *bool
	Paused       *bool
	Speed        int
	SampleRate   int
	BatchSize    int
	InputRate    int
	RingUsed     int
	RingCapacity int
	TargetFrames int
	Resyncs      uint64
	Reopens      uint64
	Dropped      uint64
	Underruns    uint64
	Frames       uint64
	Goroutines   int
	MemAlloc     uint64
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("emusync"))
	b.WriteString("\n\n")

	b.WriteString(m.renderDevice())
	b.WriteString(m.renderControls())
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ volume  ←/→ latency  d device  1/2/4 speed  space pause  i debug  q quit"))
	b.WriteString("\n")
	return b.String()
}

func field(label, value string) string {
	return headerStyle.Render(fmt.Sprintf("%-9s", label)) + valueStyle.Render(value) + "\n"
}

func (m Model) renderDevice() string {
	name := m.boundDevice
	if name == "" {
		name = m.device
	}
	status := fmt.Sprintf("%s (%d Hz, batch %d)", name, m.sampleRate, m.batchSize)
	if !m.attached {
		status = warnStyle.Render("no device, retrying")
	}

	s := field("Device:", status)
	s += field("Route:", m.device)
	s += field("Input:", fmt.Sprintf("%d Hz", m.inputRate))
	return s
}

func (m Model) renderControls() string {
	vol := fmt.Sprintf("[%s] %d%%", renderBar(m.volume, 100, 10), m.volume)
	if m.volume == 0 {
		vol += " muted"
	}

	speed := fmt.Sprintf("%dx", m.speed)
	if m.paused {
		speed = warnStyle.Render("paused")
	}

	return "\n" + field("Volume:", vol) + field("Latency:", fmt.Sprintf("%dms", m.latencyMs)) + field("Speed:", speed)
}

func (m Model) renderStats() string {
	fill := fmt.Sprintf("[%s] %d/%d (target %d)",
		renderBar(m.ringUsed, m.ringCapacity, 20), m.ringUsed, m.ringCapacity, m.targetFrames)

	return "\n" + field("Buffer:", fill) +
		field("Resyncs:", fmt.Sprintf("%d  reopens %d", m.resyncs, m.reopens)) +
		field("Lost:", fmt.Sprintf("dropped %d  underruns %d", m.dropped, m.underruns)) +
		field("Frames:", fmt.Sprintf("%d", m.frames))
}

func (m Model) renderDebug() string {
	return "\n" + field("Threads:", fmt.Sprintf("%d goroutines", m.goroutines)) +
		field("Memory:", fmt.Sprintf("%.1f MiB", float64(m.memAlloc)/(1<<20)))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.volume = clamp(m.volume+volumeStep, 0, 100)
		m.send(Command{Kind: CmdVolume, Value: m.volume})
	case "down":
		m.volume = clamp(m.volume-volumeStep, 0, 100)
		m.send(Command{Kind: CmdVolume, Value: m.volume})
	case "right":
		m.latencyMs = clamp(m.latencyMs+latencyStep, minLatencyMs, maxLatencyMs)
		m.send(Command{Kind: CmdLatency, Value: m.latencyMs})
	case "left":
		m.latencyMs = clamp(m.latencyMs-latencyStep, minLatencyMs, maxLatencyMs)
		m.send(Command{Kind: CmdLatency, Value: m.latencyMs})
	case "d":
		m.device = m.nextDevice()
		m.send(Command{Kind: CmdDevice, Device: m.device})
	case "1", "2", "4":
		m.speed = int(msg.String()[0] - '0')
		m.send(Command{Kind: CmdSpeed, Value: m.speed})
	case " ", "space", "p":
		m.paused = !m.paused
		v := 0
		if m.paused {
			v = 1
		}
		m.send(Command{Kind: CmdPause, Value: v})
	case "i":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// nextDevice cycles Default followed by every enumerated device
func (m Model) nextDevice() string {
	choices := append([]string{DefaultDevice}, m.devices...)
	for i, name := range choices {
		if name == m.device {
			return choices[(i+1)%len(choices)]
		}
	}
	return DefaultDevice
}

func (m Model) send(cmd Command) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Commands <- cmd:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Volume != 0 {
		m.volume = msg.Volume
	}
	if msg.LatencyMs != 0 {
		m.latencyMs = msg.LatencyMs
	}
	if msg.Device != "" {
		m.device = msg.Device
	}
	if msg.Devices != nil {
		m.devices = msg.Devices
	}
	if msg.BoundDevice != "" {
		m.boundDevice = msg.BoundDevice
	}
	if msg.Attached != nil {
		m.attached = *msg.Attached
	}
	if msg.Paused != nil {
		m.paused = *msg.Paused
	}
	if msg.Speed != 0 {
		m.speed = msg.Speed
	}
	if msg.SampleRate != 0 {
		m.sampleRate = msg.SampleRate
		m.batchSize = msg.BatchSize
	}
	if msg.InputRate != 0 {
		m.inputRate = msg.InputRate
	}
	if msg.RingCapacity != 0 {
		m.ringUsed = msg.RingUsed
		m.ringCapacity = msg.RingCapacity
		m.targetFrames = msg.TargetFrames
	}
	if msg.Resyncs != 0 || msg.Reopens != 0 {
		m.resyncs = msg.Resyncs
		m.reopens = msg.Reopens
	}
	if msg.Dropped != 0 || msg.Underruns != 0 {
		m.dropped = msg.Dropped
		m.underruns = msg.Underruns
	}
	if msg.Frames != 0 {
		m.frames = msg.Frames
	}
	if msg.Goroutines != 0 {
		m.goroutines = msg.Goroutines
		m.memAlloc = msg.MemAlloc
	}
}

func renderBar(value, max, width int) string {
	filled := 0
	if max > 0 {
		filled = clamp(value*width/max, 0, width)
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
