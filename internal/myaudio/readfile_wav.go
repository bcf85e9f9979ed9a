package myaudio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/errors"
)

// ReadWAVFile decodes a WAV file into consecutive analysis windows of int16
// samples. Stereo input is downmixed to mono by channel averaging. A sample
// rate different from the configured one is rejected, since the feature
// extraction parameters only match the trained model at that rate.
func ReadWAVFile(path string, settings *conf.Settings) ([][]int16, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from the CLI argument
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open audio file: %w", err)).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = file.Close() }()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Newf("input is not a valid WAV audio file: %s", path).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	if int(decoder.SampleRate) != settings.Audio.SampleRate {
		return nil, errors.Newf("sample rate %d does not match configured %d Hz",
			decoder.SampleRate, settings.Audio.SampleRate).
			Component("myaudio").
			Category(errors.CategoryConfiguration).
			Context("path", path).
			Context("file_rate", int(decoder.SampleRate)).
			Build()
	}

	divisor, err := sampleDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}
	numChans := int(decoder.NumChans)
	if numChans < 1 || numChans > 2 {
		return nil, errors.Newf("unsupported number of channels: %d", numChans).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	windowSamples := settings.WindowSamples()
	var windows [][]int16
	current := make([]int16, 0, windowSamples)

	buf := &audio.IntBuffer{
		Data:   make([]int, windowSamples*numChans),
		Format: &audio.Format{SampleRate: settings.Audio.SampleRate, NumChannels: numChans},
	}

	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil {
			return nil, errors.New(fmt.Errorf("error reading PCM data: %w", err)).
				Component("myaudio").
				Category(errors.CategoryFileIO).
				Context("path", path).
				Build()
		}
		if n == 0 {
			break
		}

		for i := 0; i+numChans <= n; i += numChans {
			sum := 0
			for ch := 0; ch < numChans; ch++ {
				sum += buf.Data[i+ch]
			}
			sample := int16(sum / numChans / divisor)
			current = append(current, sample)
			if len(current) == windowSamples {
				windows = append(windows, current)
				current = make([]int16, 0, windowSamples)
			}
		}
	}

	// Trailing partial window is kept; the extractor zero pads it.
	if len(current) > 0 {
		windows = append(windows, current)
	}

	return windows, nil
}

// sampleDivisor returns the divisor that scales decoded integer samples of
// the given bit depth down to 16-bit range.
func sampleDivisor(bitDepth int) (int, error) {
	switch bitDepth {
	case 16:
		return 1, nil
	case 24:
		return 256, nil
	case 32:
		return 65536, nil
	default:
		return 0, errors.Newf("unsupported bit depth: %d", bitDepth).
			Component("myaudio").
			Category(errors.CategoryFileIO).
			Build()
	}
}
