// conf/validate.go configuration validation
package conf

import (
	"fmt"
)

// Validate checks that the settings describe a runnable configuration.
// Analysis parameters are checked here, before any device or model is
// opened, because a silently wrong value corrupts predictions instead of
// failing loudly later.
func (s *Settings) Validate() error {
	if s.BusBell.Threshold <= 0 || s.BusBell.Threshold > 1 {
		return fmt.Errorf("busbell.threshold must be within (0.0, 1.0], got %v", s.BusBell.Threshold)
	}
	if s.BusBell.TargetClass == "" {
		return fmt.Errorf("busbell.targetclass must be set")
	}
	if s.BusBell.Threads < 0 {
		return fmt.Errorf("busbell.threads must not be negative, got %d", s.BusBell.Threads)
	}

	if s.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.samplerate must be positive, got %d", s.Audio.SampleRate)
	}
	if s.Audio.WindowSec <= 0 {
		return fmt.Errorf("audio.windowsec must be positive, got %v", s.Audio.WindowSec)
	}
	if s.Audio.FFTSize <= 0 || s.Audio.FFTSize&(s.Audio.FFTSize-1) != 0 {
		return fmt.Errorf("audio.fftsize must be a positive power of two, got %d", s.Audio.FFTSize)
	}
	if s.Audio.HopLength <= 0 || s.Audio.HopLength > s.Audio.FFTSize {
		return fmt.Errorf("audio.hoplength must be within (0, fftsize], got %d", s.Audio.HopLength)
	}
	if s.Audio.FFTSize > s.WindowSamples() {
		return fmt.Errorf("audio.fftsize %d exceeds window of %d samples", s.Audio.FFTSize, s.WindowSamples())
	}
	if s.Audio.NumCoefficients <= 0 || s.Audio.NumCoefficients > s.Audio.NumMelBands {
		return fmt.Errorf("audio.numcoefficients must be within (0, nummelbands], got %d", s.Audio.NumCoefficients)
	}

	if s.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.maxuploadmb must be positive, got %d", s.Server.MaxUploadMB)
	}

	return nil
}
