// ABOUTME: Decibel volume curve for resampler output
// ABOUTME: Maps 0-100 volume onto fixed-point gain multipliers
package resample

import "math"

const (
	MinVolume = 0
	MaxVolume = 100

	// minVolumeDB is the attenuation at volume 0+ (volume 0 itself is silence)
	minVolumeDB = -60.0
	volumeShift = 16
	unityGain   = 1 << volumeShift
)

var volumeTable = buildVolumeTable()

func buildVolumeTable() [MaxVolume + 1]int32 {
	var table [MaxVolume + 1]int32
	for v := 1; v < MaxVolume; v++ {
		db := minVolumeDB * float64(MaxVolume-v) / MaxVolume
		table[v] = int32(math.Round(math.Pow(10, db/20) * unityGain))
	}
	table[MaxVolume] = unityGain
	return table
}

// VolumeGain returns the linear gain applied at the given volume
func VolumeGain(volume int) float64 {
	return float64(volumeTable[clampVolume(volume)]) / unityGain
}

func clampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}
