// ABOUTME: Offline renderer for emulation cores
// ABOUTME: Runs a core through the band-limited resampler into a WAV or raw file
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/harperreed/emusync/internal/emucore"
	"github.com/harperreed/emusync/pkg/audio"
	"github.com/harperreed/emusync/pkg/audio/encode"
	"github.com/harperreed/emusync/pkg/audio/resample"
)

var (
	source  = flag.String("source", "", "Audio file to render (mp3, wav, flac, opus, raw); empty renders the tone core")
	toneHz  = flag.Int("tone-hz", emucore.DefaultToneHz, "Tone core frequency in Hz")
	outPath = flag.String("out", "render.wav", "Output file (.wav, .raw or .pcm)")
	rate    = flag.Int("rate", 48000, "Output sample rate in Hz")
	seconds = flag.Float64("seconds", 5, "Length to render")
	volume  = flag.Int("volume", resample.MaxVolume, "Volume 0-100")
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	var (
		core emucore.Core
		err  error
	)
	if *source != "" {
		core, err = emucore.NewFileCore(*source, false)
	} else {
		core, err = emucore.NewToneCore(*toneHz, emucore.DefaultToneAmplitude)
	}
	if err != nil {
		log.Fatalf("Failed to create core: %v", err)
	}
	defer core.Close()

	enc, err := encode.Create(*outPath, *rate)
	if err != nil {
		log.Fatalf("%v", err)
	}
	meter := encode.NewMeter(enc)

	frames := int(*seconds * float64(*rate))
	if err := render(core, meter, *rate, frames, *volume); err != nil {
		meter.Close()
		os.Remove(*outPath)
		log.Fatalf("Render failed: %v", err)
	}
	if err := meter.Close(); err != nil {
		log.Fatalf("%v", err)
	}

	l := meter.Levels()
	fmt.Printf("Wrote %s: %d frames at %d Hz from %d Hz\n", *outPath, l.Frames, *rate, core.SampleRate())
	fmt.Printf("  left:  peak %.3f  rms %.3f\n", l.PeakLeft, l.RMSLeft)
	fmt.Printf("  right: peak %.3f  rms %.3f\n", l.PeakRight, l.RMSRight)
}

// render steps core until frames output frames are written or it ends
func render(core emucore.Core, out encode.Encoder, outRate, frames, volume int) error {
	r := resample.New(min(outRate/10, resample.MaxCapacity))
	if err := r.SetRates(float64(core.SampleRate()), float64(outRate)); err != nil {
		return err
	}
	r.Clear()

	buf := make([]int16, r.Capacity()*audio.Channels)
	var prevL, prevR int32
	written := 0

	for written < frames {
		frame, err := core.Step()
		if err != nil {
			// A finished file core just ends the render
			log.Printf("Core stopped: %v", err)
			break
		}

		n := len(frame.Samples) / audio.Channels
		chunk := max(r.ClocksNeeded(r.Capacity()/2), 1)
		for start := 0; start < n; start += chunk {
			end := min(start+chunk, n)
			for i := start; i < end; i++ {
				left, right := int32(frame.Samples[i*2]), int32(frame.Samples[i*2+1])
				r.AddDelta(uint(i-start), left-prevL, right-prevR)
				prevL, prevR = left, right
			}
			r.EndFrame(uint(end - start))

			got := r.ReadSamples(buf, volume)
			got = min(got, frames-written)
			if err := out.Write(buf[:got*audio.Channels]); err != nil {
				return err
			}
			written += got
		}
	}
	return nil
}
