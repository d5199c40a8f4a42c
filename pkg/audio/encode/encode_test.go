// ABOUTME: Unit tests for the encoders
// ABOUTME: Tests raw PCM bytes, WAV round trips and level metering
package encode

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/harperreed/emusync/pkg/audio/decode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMEncoder(t *testing.T) {
	var buf bytes.Buffer
	e := NewPCM(&buf)

	require.NoError(t, e.Write([]int16{1, -1, 32767, -32768}))
	require.NoError(t, e.Close())

	out := buf.Bytes()
	require.Len(t, out, 8)
	assert.Equal(t, int16(1), int16(binary.LittleEndian.Uint16(out[0:])))
	assert.Equal(t, int16(-1), int16(binary.LittleEndian.Uint16(out[2:])))
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(out[4:])))
	assert.Equal(t, int16(-32768), int16(binary.LittleEndian.Uint16(out[6:])))
}

func TestPartialFrameRejected(t *testing.T) {
	assert.Error(t, NewPCM(&bytes.Buffer{}).Write([]int16{1, 2, 3}))

	f, err := os.Create(filepath.Join(t.TempDir(), "x.wav"))
	require.NoError(t, err)
	defer f.Close()
	w, err := NewWAV(f, 48000)
	require.NoError(t, err)
	assert.Error(t, w.Write([]int16{1}))
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	e, err := Create(path, 32000)
	require.NoError(t, err)

	samples := make([]int16, 2000)
	for i := range samples {
		samples[i] = int16(i*13 - 10000)
	}
	require.NoError(t, e.Write(samples[:1000]))
	require.NoError(t, e.Write(samples[1000:]))
	require.NoError(t, e.Close())

	r, err := decode.Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 32000, r.SampleRate())
	got, err := decode.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, samples, got)
}

func TestRawRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.raw")
	e, err := Create(path, 0)
	require.NoError(t, err)
	require.NoError(t, e.Write([]int16{5, -5, 7, -7}))
	require.NoError(t, e.Close())

	r, err := decode.Open(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := decode.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []int16{5, -5, 7, -7}, got)
}

func TestCreateErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Create(filepath.Join(dir, "out.ogg"), 48000)
	assert.Error(t, err)

	_, err = Create(filepath.Join(dir, "missing", "out.wav"), 48000)
	assert.Error(t, err)

	_, err = Create(filepath.Join(dir, "out.wav"), 0)
	assert.Error(t, err)
}

func TestMeterLevels(t *testing.T) {
	m := NewMeter(nil)
	assert.Equal(t, Levels{}, m.Levels())

	// Left: half-scale sine, right: full-scale square
	const frames = 4800
	samples := make([]int16, frames*2)
	for i := 0; i < frames; i++ {
		samples[i*2] = int16(16384 * math.Sin(2*math.Pi*float64(i)/48))
		if (i/24)%2 == 0 {
			samples[i*2+1] = 32767
		} else {
			samples[i*2+1] = -32768
		}
	}
	require.NoError(t, m.Write(samples[:frames]))
	require.NoError(t, m.Write(samples[frames:]))

	l := m.Levels()
	assert.Equal(t, frames, l.Frames)
	assert.InDelta(t, 0.5, l.PeakLeft, 0.001)
	assert.InDelta(t, 0.5/math.Sqrt2, l.RMSLeft, 0.001)
	assert.InDelta(t, 1.0, l.PeakRight, 0.001)
	assert.InDelta(t, 1.0, l.RMSRight, 0.001)
	assert.NoError(t, m.Close())
}

func TestMeterForwards(t *testing.T) {
	var buf bytes.Buffer
	m := NewMeter(NewPCM(&buf))

	require.NoError(t, m.Write([]int16{0, 0, 100, -100}))
	assert.Equal(t, 8, buf.Len())
	assert.InDelta(t, 100.0/32768, m.Levels().PeakLeft, 1e-9)
	assert.NoError(t, m.Close())
}
