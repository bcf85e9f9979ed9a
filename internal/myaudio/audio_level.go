package myaudio

import (
	"math"

	"github.com/busbell/busbell-go/internal/conf"
)

// LevelData describes the loudness of one chunk of samples.
type LevelData struct {
	Level    int  // 0-100 scaled from RMS decibels
	Clipping bool // true when any sample hit full scale
}

// CalculateLevel computes the RMS level of the samples scaled to 0-100,
// flagging clipping when full-scale samples are present. Used for debug
// output so a silent microphone is distinguishable from a dead one.
func CalculateLevel(samples []int16) LevelData {
	if len(samples) == 0 {
		return LevelData{}
	}

	var sum float64
	clipping := false
	for _, s := range samples {
		v := float64(s)
		sum += v * v
		if s == math.MaxInt16 || s == math.MinInt16 {
			clipping = true
		}
	}

	rms := math.Sqrt(sum / float64(len(samples)))
	db := 20 * math.Log10(rms/conf.SampleMax)

	// Map roughly -60..-10 dB onto 0..100.
	scaled := (db + 60) * (100.0 / 50.0)
	if clipping {
		scaled = math.Max(scaled, 95)
	}
	if scaled < 0 {
		scaled = 0
	} else if scaled > 100 {
		scaled = 100
	}

	return LevelData{Level: int(scaled), Clipping: clipping}
}
