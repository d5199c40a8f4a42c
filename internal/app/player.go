// ABOUTME: Main player application orchestration
// ABOUTME: Coordinates the core, audio pipeline, device events, driver loop and UI
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/emusync/internal/config"
	"github.com/harperreed/emusync/internal/emucore"
	"github.com/harperreed/emusync/internal/player"
	"github.com/harperreed/emusync/internal/ui"
	"github.com/harperreed/emusync/internal/version"
	"github.com/harperreed/emusync/pkg/audio/output"
	"github.com/harperreed/emusync/pkg/emusync"
	"github.com/harperreed/emusync/pkg/sync"
)

const statsInterval = 500 * time.Millisecond

// Deps overrides the components New would otherwise build from config
type Deps struct {
	Backend output.Backend
	Core    emucore.Core
	Clock   sync.Clock
}

// Player represents the main player application
type Player struct {
	config   config.Config
	backend  output.Backend
	core     emucore.Core
	pipeline *emusync.Pipeline
	throttle *sync.Throttle
	runner   *player.Runner
	watcher  *output.Watcher
	controls *ui.Controls
	tuiProg  *tea.Program
}

// NewBackend returns the audio backend named in cfg
func NewBackend(cfg config.Config) (output.Backend, error) {
	switch cfg.Backend {
	case config.BackendMalgo:
		return output.NewMalgo(cfg.PeriodMs), nil
	case config.BackendOto:
		return output.NewOto(0, cfg.PeriodMs), nil
	case config.BackendPortAudio:
		return output.NewPortAudio(), nil
	case config.BackendHeadless:
		return output.NewHeadless(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// NewCore returns the tone core, or a file core when cfg names a source
func NewCore(cfg config.Config) (emucore.Core, error) {
	if cfg.Source != "" {
		return emucore.NewFileCore(cfg.Source, cfg.Loop)
	}
	return emucore.NewToneCore(cfg.ToneHz, emucore.DefaultToneAmplitude)
}

// New creates a player. Zero fields in deps are built from cfg.
func New(cfg config.Config, deps Deps) (*Player, error) {
	var err error
	backend := deps.Backend
	if backend == nil {
		if backend, err = NewBackend(cfg); err != nil {
			return nil, err
		}
	}

	core := deps.Core
	if core == nil {
		if core, err = NewCore(cfg); err != nil {
			backend.Close()
			return nil, fmt.Errorf("failed to create core: %w", err)
		}
	}

	pcfg := emusync.DefaultConfig(backend, core.SampleRate())
	pcfg.DeviceName = cfg.Device
	pcfg.LatencyMs = cfg.LatencyMs
	pcfg.Volume = cfg.Volume

	pipeline, err := emusync.New(pcfg)
	if err != nil {
		core.Close()
		backend.Close()
		return nil, err
	}

	throttle := sync.NewThrottle(deps.Clock)
	runner := player.NewRunner(core, pipeline, throttle)
	runner.SetSpeed(cfg.Speed)

	p := &Player{
		config:   cfg,
		backend:  backend,
		core:     core,
		pipeline: pipeline,
		throttle: throttle,
		runner:   runner,
	}

	if n, ok := backend.(output.Notifier); ok {
		n.Notify(pipeline.Post)
	}
	if cfg.WatchInterval > 0 {
		p.watcher = output.NewWatcher(backend, cfg.WatchInterval, pipeline.Post)
	}

	return p, nil
}

// Run plays until ctx is done, the user quits or the core ends
func (p *Player) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Printf("%s %s: backend %s, device %q, latency %dms",
		version.Product, version.Version, p.backend.Name(), p.config.Device, p.config.LatencyMs)

	var quit <-chan struct{}
	if !p.config.NoTUI {
		p.controls = ui.NewControls()
		p.tuiProg = ui.Run(p.controls, p.pipeline.Volume(), p.pipeline.Latency())
		quit = p.controls.Quit
		go func() {
			if _, err := p.tuiProg.Run(); err != nil {
				log.Printf("TUI error: %v", err)
			}
			cancel()
		}()
		go p.handleControls(ctx)
		go p.statsLoop(ctx)
	}

	go p.handleDeviceEvents(ctx)
	if p.watcher != nil {
		go p.watcher.Run(ctx)
	}
	if h, ok := p.backend.(*output.Headless); ok {
		go driveHeadless(ctx, h)
	}

	done := make(chan error, 1)
	go func() { done <- p.runner.Run(ctx) }()

	var err error
	finished := false
	select {
	case err = <-done:
		finished = true
		if err != nil {
			log.Printf("Emulation stopped: %v", err)
		}
	case <-quit:
		log.Printf("Received quit signal from TUI")
	case <-ctx.Done():
		log.Printf("Shutdown signal received")
	}

	cancel()
	if !finished {
		// The runner owns the throttle until it returns
		err = <-done
	}
	if p.tuiProg != nil {
		p.tuiProg.Quit()
	}
	return err
}

// HandleCommand applies a control change from the UI
func (p *Player) HandleCommand(cmd ui.Command) {
	switch cmd.Kind {
	case ui.CmdVolume:
		p.pipeline.SetVolume(cmd.Value)
	case ui.CmdLatency:
		p.pipeline.SetLatency(cmd.Value)
	case ui.CmdDevice:
		p.pipeline.SetAudioDevice(cmd.Device)
	case ui.CmdSpeed:
		p.runner.SetSpeed(uint32(cmd.Value))
	case ui.CmdPause:
		p.runner.SetPaused(cmd.Value != 0)
	}
}

// Status builds a TUI snapshot
func (p *Player) Status() ui.StatusMsg {
	ps := p.pipeline.Stats()
	rs := p.runner.Stats()

	attached := ps.DeviceAttached
	paused := rs.Paused
	return ui.StatusMsg{
		Volume:       ps.Volume,
		LatencyMs:    ps.LatencyMs,
		Device:       ps.DeviceName,
		BoundDevice:  ps.BoundDevice,
		Attached:     &attached,
		Paused:       &paused,
		Speed:        int(rs.Speed),
		SampleRate:   ps.SampleRate,
		BatchSize:    ps.BatchSize,
		InputRate:    ps.InputRate,
		RingUsed:     ps.RingUsed,
		RingCapacity: ps.RingCapacity,
		TargetFrames: ps.TargetFrames,
		Resyncs:      ps.Resyncs,
		Reopens:      ps.Reopens,
		Dropped:      ps.Dropped,
		Underruns:    ps.Underruns,
		Frames:       rs.Frames,
	}
}

// Pipeline exposes the audio pipeline
func (p *Player) Pipeline() *emusync.Pipeline {
	return p.pipeline
}

// Runner exposes the driver loop
func (p *Player) Runner() *player.Runner {
	return p.runner
}

// Close releases the pipeline, core and backend
func (p *Player) Close() error {
	var errs []error
	if err := p.pipeline.Close(); err != nil && !errors.Is(err, emusync.ErrClosed) {
		errs = append(errs, err)
	}
	if err := p.core.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.backend.Close(); err != nil {
		errs = append(errs, err)
	}

	ts := p.throttle.Stats()
	log.Printf("Player stopped: %d throttle calls, %d sleeps, %d resyncs", ts.Calls, ts.Sleeps, ts.Resyncs)
	return errors.Join(errs...)
}

// handleDeviceEvents routes backend, binding and watcher events into the pipeline
func (p *Player) handleDeviceEvents(ctx context.Context) {
	events := p.pipeline.Events()
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if p.pipeline.HandleDeviceEvent(e) {
				log.Printf("Handled %s for %q", e.Kind, e.ID)
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleControls processes commands from the TUI
func (p *Player) handleControls(ctx context.Context) {
	for {
		select {
		case cmd := <-p.controls.Commands:
			p.HandleCommand(cmd)
		case <-ctx.Done():
			return
		}
	}
}

// statsLoop periodically updates TUI with playback statistics
func (p *Player) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	// Runtime stats and device lists are slower to collect
	slowTicker := time.NewTicker(2 * time.Second)
	defer slowTicker.Stop()

	var goroutines int
	var memAlloc uint64
	var devices []string

	refresh := func() {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		goroutines = runtime.NumGoroutine()
		memAlloc = m.Alloc

		names, err := p.pipeline.EnumerateAudioDevices()
		if err != nil {
			return
		}
		// The TUI prepends Default itself
		devices = names[1:]
	}
	refresh()

	for {
		select {
		case <-slowTicker.C:
			refresh()
		case <-ticker.C:
			msg := p.Status()
			msg.Devices = devices
			msg.Goroutines = goroutines
			msg.MemAlloc = memAlloc
			p.tuiProg.Send(msg)
		case <-ctx.Done():
			return
		}
	}
}

// driveHeadless stands in for a device thread, draining whichever
// headless stream is currently open in real time
func driveHeadless(ctx context.Context, h *output.Headless) {
	for {
		if s := h.Active(); s != nil && !s.Closed() {
			s.Run(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// ListDevices writes the backend's devices to w
func ListDevices(w io.Writer, backend output.Backend) error {
	devices, err := backend.Devices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	fmt.Fprintf(w, "Output devices (%s):\n", backend.Name())
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		rate := "native"
		if d.SampleRate > 0 {
			rate = fmt.Sprintf("%d Hz", d.SampleRate)
		}
		fmt.Fprintf(w, "  %s %s (%s)\n", marker, d.Name, rate)
	}
	return nil
}
