// Package myaudio owns the microphone capture path: a malgo capture device
// writes PCM into a ring buffer from its realtime callback, and the
// detection loop pulls fixed-duration chunks out of it.
package myaudio

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/errors"
)

// pollInterval is how often ReadChunk checks the ring buffer for a full window.
const pollInterval = 10 * time.Millisecond

// bufferWindows is the ring buffer capacity in analysis windows. Three
// windows absorbs scheduling jitter without hiding a stalled consumer.
const bufferWindows = 3

// captureSource holds information about an audio capture source.
type captureSource struct {
	Name    string
	ID      string
	Pointer unsafe.Pointer
}

// DeviceInfo holds information about an audio device.
type DeviceInfo struct {
	Index   int
	Name    string
	ID      string
	Default bool
}

// Capture owns a malgo capture device and the handoff buffer between the
// realtime audio callback and the detection loop.
type Capture struct {
	settings *conf.Settings
	log      *slog.Logger

	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	source   captureSource

	rb          *ringbuffer.RingBuffer
	windowBytes int

	dropped atomic.Uint64
	stopped chan struct{}
	once    sync.Once
}

// NewCapture acquires the configured capture device in 16-bit mono at the
// configured sample rate. It fails with a device-unavailable error when no
// matching input device exists or the format is not supported.
func NewCapture(settings *conf.Settings, log *slog.Logger) (*Capture, error) {
	c := &Capture{
		settings:    settings,
		log:         log,
		windowBytes: settings.WindowSamples() * conf.BitDepth / 8,
		stopped:     make(chan struct{}),
	}
	c.rb = ringbuffer.New(c.windowBytes * bufferWindows)

	malgoCtx, err := malgo.InitContext([]malgo.Backend{platformBackend()}, malgo.ContextConfig{}, func(message string) {
		if settings.Debug {
			log.Debug("malgo", "message", strings.TrimSpace(message))
		}
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to initialize audio context: %w", err)).
			Component("myaudio").
			Category(errors.CategoryDeviceUnavailable).
			Build()
	}
	c.malgoCtx = malgoCtx

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		c.teardownContext()
		return nil, errors.New(fmt.Errorf("failed to enumerate capture devices: %w", err)).
			Component("myaudio").
			Category(errors.CategoryDeviceUnavailable).
			Build()
	}

	source, err := selectCaptureSource(settings.Audio.Source, infos)
	if err != nil {
		c.teardownContext()
		return nil, err
	}
	c.source = source

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = conf.NumChannels
	deviceConfig.SampleRate = uint32(settings.Audio.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.Capture.DeviceID = source.Pointer

	callbacks := malgo.DeviceCallbacks{
		Data: c.onReceiveFrames,
		Stop: c.onDeviceStop,
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		c.teardownContext()
		return nil, errors.New(fmt.Errorf("failed to initialize capture device %q: %w", source.Name, err)).
			Component("myaudio").
			Category(errors.CategoryDeviceUnavailable).
			Context("device", source.Name).
			Context("sample_rate", settings.Audio.SampleRate).
			Build()
	}
	c.device = device

	return c, nil
}

// Start begins capturing. Reads are ordered and gap-free from this point
// until Close, barring device overflow which is counted and logged.
func (c *Capture) Start() error {
	if err := c.device.Start(); err != nil {
		return errors.New(fmt.Errorf("failed to start capture device: %w", err)).
			Component("myaudio").
			Category(errors.CategoryAudioStream).
			Context("device", c.source.Name).
			Build()
	}
	c.log.Info("Listening on audio source", "device", c.source.Name, "id", c.source.ID)
	return nil
}

// Name returns the name of the selected capture device.
func (c *Capture) Name() string {
	return c.source.Name
}

// TakeDroppedBytes returns and resets the number of PCM bytes lost to ring
// buffer overflow since the last call.
func (c *Capture) TakeDroppedBytes() uint64 {
	return c.dropped.Swap(0)
}

// onReceiveFrames runs on the audio thread. It must not block, so a full
// ring buffer drops data and records the loss instead of waiting.
func (c *Capture) onReceiveFrames(pOutput, pSamples []byte, frameCount uint32) {
	n, err := c.rb.TryWrite(pSamples)
	if err != nil || n < len(pSamples) {
		c.dropped.Add(uint64(len(pSamples) - n))
	}
}

// onDeviceStop fires when the device stops outside of Close, e.g. on
// disconnect. ReadChunk observes the closed channel and surfaces a stream
// error to the loop.
func (c *Capture) onDeviceStop() {
	c.once.Do(func() { close(c.stopped) })
}

// ReadChunk blocks until one full analysis window of samples is available
// and returns it as int16 samples. It honors ctx cancellation and imposes a
// stall timeout of two window durations so a wedged device cannot block
// shutdown forever.
func (c *Capture) ReadChunk(ctx context.Context) ([]int16, error) {
	stallTimeout := time.Duration(2 * c.settings.Audio.WindowSec * float64(time.Second))
	deadline := time.NewTimer(stallTimeout)
	defer deadline.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if c.rb.Length() >= c.windowBytes {
			buf := make([]byte, c.windowBytes)
			if _, err := c.rb.Read(buf); err != nil {
				return nil, errors.New(fmt.Errorf("ring buffer read failed: %w", err)).
					Component("myaudio").
					Category(errors.CategoryAudioStream).
					Build()
			}
			return bytesToInt16(buf), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.stopped:
			return nil, errors.Newf("capture device %q stopped unexpectedly", c.source.Name).
				Component("myaudio").
				Category(errors.CategoryAudioStream).
				Context("device", c.source.Name).
				Build()
		case <-deadline.C:
			return nil, errors.Newf("no audio from device %q within %s", c.source.Name, stallTimeout).
				Component("myaudio").
				Category(errors.CategoryAudioStream).
				Context("device", c.source.Name).
				Context("stall_timeout", stallTimeout.String()).
				Build()
		case <-ticker.C:
		}
	}
}

// Close releases the device and audio context. Safe to call on all exit
// paths, including after a failed read.
func (c *Capture) Close() error {
	c.once.Do(func() { close(c.stopped) })
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.teardownContext()
	return nil
}

func (c *Capture) teardownContext() {
	if c.malgoCtx != nil {
		_ = c.malgoCtx.Uninit()
		c.malgoCtx.Free()
		c.malgoCtx = nil
	}
}

// platformBackend picks the native audio backend for the current OS.
func platformBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

// selectCaptureSource matches the configured source against the available
// capture devices by decoded ID or name substring.
func selectCaptureSource(audioSource string, infos []malgo.DeviceInfo) (captureSource, error) {
	for _, info := range infos {
		decodedID, err := hexToASCII(info.ID.String())
		if err != nil {
			continue
		}
		if matchesDeviceSettings(decodedID, info, audioSource) {
			return captureSource{
				Name:    info.Name(),
				ID:      decodedID,
				Pointer: info.ID.Pointer(),
			}, nil
		}
	}

	return captureSource{}, errors.Newf("no suitable capture source found for device setting %q", audioSource).
		Component("myaudio").
		Category(errors.CategoryDeviceUnavailable).
		Context("source", audioSource).
		Context("device_count", len(infos)).
		Build()
}

// matchesDeviceSettings checks if the device matches the configured source.
func matchesDeviceSettings(decodedID string, info malgo.DeviceInfo, audioSource string) bool {
	if runtime.GOOS == "windows" && audioSource == "sysdefault" {
		// On Windows there is no "sysdefault" device, use the default one.
		return info.IsDefault == 1
	}
	return decodedID == audioSource || strings.Contains(info.Name(), audioSource)
}

// ListCaptureDevices returns the available audio capture devices.
func ListCaptureDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to initialize audio context: %w", err)).
			Component("myaudio").
			Category(errors.CategoryDeviceUnavailable).
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to enumerate capture devices: %w", err)).
			Component("myaudio").
			Category(errors.CategoryDeviceUnavailable).
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		decodedID, err := hexToASCII(info.ID.String())
		if err != nil {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    info.Name(),
			ID:      decodedID,
			Default: info.IsDefault == 1,
		})
	}
	return devices, nil
}

// hexToASCII converts a hexadecimal string to an ASCII string.
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(bytes), "\x00"), nil
}

// bytesToInt16 converts little-endian PCM bytes to int16 samples.
func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return samples
}
