// ABOUTME: Tests for audio types
// ABOUTME: Tests clamping and byte packing helpers
package audio

import "testing"

func TestClamp16(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected int16
	}{
		{"zero", 0, 0},
		{"positive", 100, 100},
		{"negative", -100, -100},
		{"max", 32767, 32767},
		{"min", -32768, -32768},
		{"overflow", 40000, 32767},
		{"underflow", -40000, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clamp16(tt.input)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestPutInt16LE(t *testing.T) {
	samples := []int16{1, -1, 0x1234}
	buf := make([]byte, 6)

	n := PutInt16LE(buf, samples)
	if n != 6 {
		t.Fatalf("expected 6 bytes written, got %d", n)
	}

	expected := []byte{0x01, 0x00, 0xFF, 0xFF, 0x34, 0x12}
	for i := range expected {
		if buf[i] != expected[i] {
			t.Errorf("byte %d: expected %#x, got %#x", i, expected[i], buf[i])
		}
	}

	back := make([]int16, 3)
	if got := Int16FromLE(back, buf); got != 3 {
		t.Fatalf("expected 3 samples, got %d", got)
	}
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], back[i])
		}
	}
}

func TestInt16FromLEShortDst(t *testing.T) {
	src := []byte{1, 0, 2, 0, 3, 0}
	dst := make([]int16, 2)

	if n := Int16FromLE(dst, src); n != 2 {
		t.Errorf("expected 2 samples, got %d", n)
	}
}

func TestMonoToStereo(t *testing.T) {
	mono := []int16{5, -7}
	stereo := make([]int16, 4)
	MonoToStereo(stereo, mono)

	expected := []int16{5, 5, -7, -7}
	for i := range expected {
		if stereo[i] != expected[i] {
			t.Errorf("index %d: expected %d, got %d", i, expected[i], stereo[i])
		}
	}
}

func TestFormatFrames(t *testing.T) {
	f := Format{SampleRate: 48000, Channels: 2}
	if got := f.Frames(10); got != 5 {
		t.Errorf("expected 5 frames, got %d", got)
	}
	if got := (Format{}).Frames(10); got != 0 {
		t.Errorf("expected 0 frames for empty format, got %d", got)
	}
}
