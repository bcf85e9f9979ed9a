package myaudio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busbell/busbell-go/internal/conf"
)

func wavSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Audio.SampleRate = 22050
	s.Audio.WindowSec = 1.0
	return s
}

// TestBytesToInt16 verifies little-endian PCM decoding including negative
// and boundary values.
func TestBytesToInt16(t *testing.T) {
	t.Parallel()

	data := []byte{
		0x00, 0x00, // 0
		0x01, 0x00, // 1
		0xff, 0xff, // -1
		0xff, 0x7f, // 32767
		0x00, 0x80, // -32768
	}
	samples := bytesToInt16(data)
	assert.Equal(t, []int16{0, 1, -1, math.MaxInt16, math.MinInt16}, samples)
}

// TestHexToASCII verifies device ID decoding strips trailing NUL padding.
func TestHexToASCII(t *testing.T) {
	t.Parallel()

	decoded, err := hexToASCII("68773a312c300000")
	require.NoError(t, err)
	assert.Equal(t, "hw:1,0", decoded)

	_, err = hexToASCII("not hex")
	assert.Error(t, err)
}

// TestSampleDivisor verifies the bit depth scaling table.
func TestSampleDivisor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		bitDepth int
		divisor  int
		wantErr  bool
	}{
		{16, 1, false},
		{24, 256, false},
		{32, 65536, false},
		{8, 0, true},
		{12, 0, true},
	}

	for _, tc := range cases {
		divisor, err := sampleDivisor(tc.bitDepth)
		if tc.wantErr {
			assert.Error(t, err, "bit depth %d", tc.bitDepth)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.divisor, divisor, "bit depth %d", tc.bitDepth)
	}
}

// TestCalculateLevel verifies silence, a moderate tone and a clipped signal
// land in the expected level ranges.
func TestCalculateLevel(t *testing.T) {
	t.Parallel()

	silence := make([]int16, 1024)
	level := CalculateLevel(silence)
	assert.Equal(t, 0, level.Level)
	assert.False(t, level.Clipping)

	tone := make([]int16, 1024)
	for i := range tone {
		tone[i] = int16(8000 * math.Sin(2*math.Pi*float64(i)/64))
	}
	level = CalculateLevel(tone)
	assert.Greater(t, level.Level, 0)
	assert.LessOrEqual(t, level.Level, 100)
	assert.False(t, level.Clipping)

	clipped := make([]int16, 1024)
	for i := range clipped {
		clipped[i] = math.MaxInt16
	}
	level = CalculateLevel(clipped)
	assert.GreaterOrEqual(t, level.Level, 95)
	assert.True(t, level.Clipping)

	assert.Equal(t, LevelData{}, CalculateLevel(nil))
}

// TestMatchesDeviceSettings verifies matching by exact decoded ID.
func TestMatchesDeviceSettings(t *testing.T) {
	t.Parallel()

	var info malgo.DeviceInfo
	assert.True(t, matchesDeviceSettings("hw:1,0", info, "hw:1,0"))
	assert.False(t, matchesDeviceSettings("hw:1,0", info, "usb-mic"))
}

func writeWAV(t *testing.T, rate, bitDepth, channels, numSamples int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	buf := &audio.IntBuffer{
		Data:           make([]int, numSamples*channels),
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}
	for i := range buf.Data {
		buf.Data[i] = int(int16(100 * math.Sin(2*math.Pi*float64(i)/64)))
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	return path
}

// TestReadWAVFileWindowing verifies windows are cut at the configured size
// with a trailing partial window preserved.
func TestReadWAVFileWindowing(t *testing.T) {
	t.Parallel()

	settings := wavSettings()
	path := writeWAV(t, settings.Audio.SampleRate, 16, 1, settings.WindowSamples()*2+100)

	windows, err := ReadWAVFile(path, settings)
	require.NoError(t, err)

	require.Len(t, windows, 3)
	assert.Len(t, windows[0], settings.WindowSamples())
	assert.Len(t, windows[1], settings.WindowSamples())
	assert.Len(t, windows[2], 100)
}

// TestReadWAVFileStereoDownmix verifies a stereo file decodes to mono
// windows of the configured size.
func TestReadWAVFileStereoDownmix(t *testing.T) {
	t.Parallel()

	settings := wavSettings()
	path := writeWAV(t, settings.Audio.SampleRate, 16, 2, settings.WindowSamples())

	windows, err := ReadWAVFile(path, settings)
	require.NoError(t, err)

	require.Len(t, windows, 1)
	assert.Len(t, windows[0], settings.WindowSamples())
}

// TestReadWAVFileWrongRate verifies the sample rate mismatch guard.
func TestReadWAVFileWrongRate(t *testing.T) {
	t.Parallel()

	settings := wavSettings()
	path := writeWAV(t, 44100, 16, 1, 44100)

	_, err := ReadWAVFile(path, settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match configured")
}

// TestReadWAVFileRejectsGarbage verifies a non-WAV file is detected.
func TestReadWAVFileRejectsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("this is not audio"), 0o600))

	_, err := ReadWAVFile(path, wavSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid WAV")
}
