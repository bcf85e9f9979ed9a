// conf/consts.go hard coded constants
package conf

const (
	BitDepth    = 16 // Bit depth of captured audio
	NumChannels = 1  // Number of channels of captured audio

	// SampleMax is the magnitude of the smallest representable 16-bit
	// sample, used to normalize PCM to [-1.0, 1.0).
	SampleMax = 32768.0
)
