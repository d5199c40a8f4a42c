// ABOUTME: Tests for the emulator audio pipeline
// ABOUTME: Covers sizing, idempotent setters, resync, device loss and end-to-end output
package emusync

import (
	"errors"
	"testing"

	"github.com/harperreed/emusync/pkg/audio/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	gbAudioRate     = 2097152
	samplesPerFrame = 35112
)

func newHeadless() *output.Headless {
	return output.NewHeadless(
		output.DeviceInfo{ID: "speakers", Name: "Speakers", IsDefault: true, SampleRate: 48000},
		output.DeviceInfo{ID: "usb", Name: "USB DAC", SampleRate: 44100},
	)
}

func newPipeline(t *testing.T, h *output.Headless, device string) *Pipeline {
	t.Helper()
	cfg := DefaultConfig(h, gbAudioRate)
	cfg.DeviceName = device
	p, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func squareFrame(amplitude int16, period int) []int16 {
	pcm := make([]int16, samplesPerFrame*2)
	for i := 0; i < samplesPerFrame; i++ {
		v := amplitude
		if (i/period)%2 == 1 {
			v = -amplitude
		}
		pcm[i*2] = v
		pcm[i*2+1] = v
	}
	return pcm
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{InputRate: gbAudioRate})
	assert.Error(t, err)

	_, err = New(Config{Backend: newHeadless()})
	assert.Error(t, err)
}

func TestNewFailsWithoutDevice(t *testing.T) {
	h := output.NewHeadless()
	h.Disconnect("headless-0")

	_, err := New(DefaultConfig(h, gbAudioRate))
	require.Error(t, err)
	assert.True(t, errors.Is(err, output.ErrNoDevice))
}

func TestSizingFromNativeRate(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)
	s := p.Stats()

	assert.Equal(t, 48000, s.SampleRate)
	assert.Equal(t, 48000*DefaultLatencyMs/1000, s.TargetFrames)
	assert.Equal(t, s.TargetFrames, s.RingUsed, "ring starts at target fill")

	// No dispatch yet, so the input batch is estimated at rate/60
	tolerance := max(DefaultOutputBatchTolerance*output.DefaultHeadlessBatch, DefaultInputBatchTolerance*48000/60)
	assert.Equal(t, 2*s.TargetFrames+2*tolerance, s.RingCapacity)
	assert.Equal(t, 4000, p.resampler.Capacity())
}

func TestSettersAreIdempotent(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)
	base := p.Allocations()

	p.SetVolume(p.Volume())
	p.SetLatency(p.Latency())
	p.SetAudioDevice(p.DeviceName())
	p.SetInputAudioFrequency(gbAudioRate)
	assert.Equal(t, base, p.Allocations())
	assert.Equal(t, uint64(0), p.Stats().Reopens)

	p.SetVolume(50)
	assert.Greater(t, p.Allocations(), base)
	after := p.Allocations()

	p.SetVolume(50)
	p.SetVolume(150)
	p.SetVolume(100)
	assert.Equal(t, after+1, p.Allocations(), "clamped 150 resets once, the repeated 100 does not")
}

func TestSetLatencyResizes(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)
	p.SetLatency(200)

	s := p.Stats()
	assert.Equal(t, 200, s.LatencyMs)
	assert.Equal(t, 9600, s.TargetFrames)
	assert.Equal(t, 9600, s.RingUsed)

	p.SetLatency(-5)
	assert.Equal(t, MinLatencyMs, p.Latency())
}

func TestSetAudioDeviceSwitches(t *testing.T) {
	h := newHeadless()
	p := newPipeline(t, h, DefaultDevice)

	p.SetAudioDevice("USB DAC")
	dev, ok := p.Device()
	require.True(t, ok)
	assert.Equal(t, output.DeviceID("usb"), dev.ID)
	assert.Equal(t, 44100, p.Stats().SampleRate)
	assert.Equal(t, 1, h.OpenCount(), "old stream closed")

	p.SetAudioDevice("No Such Device")
	dev, _ = p.Device()
	assert.Equal(t, output.DeviceID("speakers"), dev.ID)
	assert.Equal(t, "No Such Device", p.DeviceName())
}

func TestEnumerateAudioDevices(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)
	names, err := p.EnumerateAudioDevices()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultDevice, "Speakers", "USB DAC"}, names)
}

func TestEnumerateAudioDevicesPropagatesErrors(t *testing.T) {
	h := newHeadless()
	p := newPipeline(t, h, DefaultDevice)
	h.Close()

	_, err := p.EnumerateAudioDevices()
	assert.Error(t, err)
}

func TestSilenceScenario(t *testing.T) {
	h := newHeadless()
	p := newPipeline(t, h, DefaultDevice)
	stream := h.Active()
	require.NotNil(t, stream)

	// Drain the silent prefill so only dispatched audio remains
	stream.Pull(p.Stats().TargetFrames)

	p.DispatchAudio(make([]int16, samplesPerFrame*2), false)
	used := p.Stats().RingUsed
	assert.InDelta(t, 804, used, 1)

	out := stream.Pull(used)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %d, expected silence", i, s)
		}
	}
}

func TestMutedScenario(t *testing.T) {
	h := newHeadless()
	p := newPipeline(t, h, DefaultDevice)
	p.SetVolume(0)

	stream := h.Active()
	stream.Pull(p.Stats().TargetFrames)

	p.DispatchAudio(squareFrame(12000, 400), false)
	out := stream.Pull(p.Stats().RingUsed)
	require.NotEmpty(t, out)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %d, expected silence at volume 0", i, s)
		}
	}
}

func TestAudibleOutput(t *testing.T) {
	h := newHeadless()
	p := newPipeline(t, h, DefaultDevice)

	stream := h.Active()
	stream.Pull(p.Stats().TargetFrames)

	p.DispatchAudio(squareFrame(12000, 400), false)
	out := stream.Pull(p.Stats().RingUsed)

	var peak int16
	for _, s := range out {
		if s > peak {
			peak = s
		}
	}
	assert.Greater(t, peak, int16(8000))
}

func TestDriftTriggersResync(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)
	frame := squareFrame(1000, 100)

	// Nothing drains the ring, so fill climbs one frame per dispatch
	for i := 0; i < 10; i++ {
		p.DispatchAudio(frame, false)
	}

	s := p.Stats()
	assert.Greater(t, s.Resyncs, uint64(0))
	limit := s.TargetFrames + max(DefaultOutputBatchTolerance*s.BatchSize, DefaultInputBatchTolerance*804)
	assert.LessOrEqual(t, s.RingUsed, limit)
}

func TestFastForwardSkipsResync(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)
	frame := squareFrame(1000, 100)

	for i := 0; i < 20; i++ {
		p.DispatchAudio(frame, true)
	}
	s := p.Stats()
	assert.Equal(t, uint64(0), s.Resyncs)
	assert.Greater(t, s.Dropped, uint64(0), "overflow is dropped while fast-forwarding")
}

func TestToleranceMultipliersConfigurable(t *testing.T) {
	h := newHeadless()
	cfg := DefaultConfig(h, gbAudioRate)
	cfg.OutputBatchTolerance = 40
	cfg.InputBatchTolerance = 40
	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	frame := squareFrame(1000, 100)
	for i := 0; i < 10; i++ {
		p.DispatchAudio(frame, false)
	}
	assert.Equal(t, uint64(0), p.Stats().Resyncs)
}

func TestDeviceLossScenario(t *testing.T) {
	h := newHeadless()
	p := newPipeline(t, h, "USB DAC")

	dev, ok := p.Device()
	require.True(t, ok)
	require.Equal(t, output.DeviceID("usb"), dev.ID)

	p.DispatchAudio(squareFrame(5000, 200), false)
	h.Disconnect("usb")

	// The binding reports the unexpected stop on the event queue
	e := <-p.Events()
	assert.Equal(t, output.DeviceLost, e.Kind)
	assert.True(t, p.HandleDeviceEvent(e))

	assert.Equal(t, DefaultDevice, p.DeviceName())
	dev, ok = p.Device()
	require.True(t, ok)
	assert.Equal(t, output.DeviceID("speakers"), dev.ID)
	assert.Equal(t, 48000, p.Stats().SampleRate)
	assert.Equal(t, uint64(1), p.Stats().Reopens)

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			p.DispatchAudio(squareFrame(5000, 200), false)
		}
	})
	assert.NotNil(t, h.Active().Pull(256))
}

func TestRecoverIgnoresOtherDevices(t *testing.T) {
	p := newPipeline(t, newHeadless(), "USB DAC")

	assert.False(t, p.RecoverLostAudioDeviceIfNeeded("speakers"))
	assert.False(t, p.RecoverLostAudioDeviceIfNeeded(output.DefaultID))
	assert.Equal(t, "USB DAC", p.DeviceName())

	assert.True(t, p.RecoverLostAudioDeviceIfNeeded("usb"))
	assert.Equal(t, DefaultDevice, p.DeviceName())
}

func TestDefaultBindingMatchesDefaultRoute(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)
	assert.True(t, p.ResetAudioDeviceIfNeeded(output.DefaultID))
	assert.Equal(t, uint64(1), p.Stats().Reopens)
}

func TestFormatChangeReopensAtNewRate(t *testing.T) {
	h := newHeadless()
	p := newPipeline(t, h, DefaultDevice)
	h.Notify(p.Post)

	h.SetFormat("speakers", 96000)
	e := <-p.Events()
	require.Equal(t, output.DeviceChanged, e.Kind)
	assert.True(t, p.HandleDeviceEvent(e))

	s := p.Stats()
	assert.Equal(t, 96000, s.SampleRate)
	assert.Equal(t, 96000*DefaultLatencyMs/1000, s.TargetFrames)
	assert.Equal(t, DefaultDevice, s.DeviceName)
}

func TestStaleEventsIgnored(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)
	stale := output.Event{Kind: output.DeviceLost, ID: "speakers", Tag: "not-the-current-binding"}
	assert.False(t, p.HandleDeviceEvent(stale))
	assert.Equal(t, uint64(0), p.Stats().Reopens)
}

func TestEventForReplacedBindingIgnored(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)

	p.mu.Lock()
	oldTag := p.binding.Tag()
	p.mu.Unlock()
	changed := output.Event{Kind: output.DeviceChanged, ID: "speakers", Tag: oldTag}

	// The first delivery reopens and so retires the tag it carries
	require.True(t, p.HandleDeviceEvent(changed))
	assert.False(t, p.HandleDeviceEvent(changed), "same device, but the binding was replaced")
	assert.False(t, p.HandleDeviceEvent(output.Event{Kind: output.DeviceLost, ID: "speakers", Tag: oldTag}))
	assert.Equal(t, uint64(1), p.Stats().Reopens)
	assert.Equal(t, DefaultDevice, p.DeviceName())
}

func TestStaleEventsRaceWithDeviceSwitch(t *testing.T) {
	p := newPipeline(t, newHeadless(), DefaultDevice)

	p.mu.Lock()
	oldTag := p.binding.Tag()
	p.mu.Unlock()

	// Retire the tag, then keep switching devices while old-tag events arrive
	p.SetAudioDevice("USB DAC")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				p.SetAudioDevice(DefaultDevice)
			} else {
				p.SetAudioDevice("USB DAC")
			}
		}
	}()

	for i := 0; i < 200; i++ {
		assert.False(t, p.HandleDeviceEvent(output.Event{Kind: output.DeviceLost, ID: "speakers", Tag: oldTag}))
		assert.False(t, p.HandleDeviceEvent(output.Event{Kind: output.DeviceChanged, ID: output.DefaultID, Tag: oldTag}))
	}
	<-done
}

func TestDispatchWithoutDeviceRetries(t *testing.T) {
	h := newHeadless()
	p := newPipeline(t, h, DefaultDevice)

	h.Disconnect("usb")
	h.Disconnect("speakers")
	assert.True(t, p.RecoverLostAudioDeviceIfNeeded("speakers"))

	_, ok := p.Device()
	assert.False(t, ok)
	assert.NotPanics(t, func() {
		p.DispatchAudio(squareFrame(5000, 200), false)
	})
	assert.False(t, p.Stats().DeviceAttached)
}

func TestPostDropsWhenFull(t *testing.T) {
	h := newHeadless()
	cfg := DefaultConfig(h, gbAudioRate)
	cfg.EventBuffer = 1
	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Close()

	p.Post(output.Event{Kind: output.DeviceChanged})
	p.Post(output.Event{Kind: output.DeviceChanged})
	assert.Equal(t, uint64(1), p.Stats().EventsDropped)
}

func TestCloseIsFinal(t *testing.T) {
	h := newHeadless()
	p, err := New(DefaultConfig(h, gbAudioRate))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Close(), ErrClosed)
	assert.Equal(t, 0, h.OpenCount())

	_, open := <-p.Events()
	assert.False(t, open)

	assert.NotPanics(t, func() {
		p.DispatchAudio(make([]int16, 64), false)
		p.Post(output.Event{})
	})
}
