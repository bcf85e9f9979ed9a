package detection

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busbell/busbell-go/internal/bellnet"
	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/errors"
	"github.com/busbell/busbell-go/internal/mfcc"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loopSettings() *conf.Settings {
	s := &conf.Settings{}
	s.BusBell = conf.BusBellSettings{
		TargetClass: "bell",
		Threshold:   0.9,
	}
	s.Audio = conf.AudioSettings{
		SampleRate:      22050,
		WindowSec:       1.0,
		FFTSize:         2048,
		HopLength:       512,
		NumCoefficients: 13,
		NumMelBands:     26,
	}
	return s
}

// stubSource yields its chunks in order, then cancels the context so the
// loop winds down after the last one.
type stubSource struct {
	chunks [][]int16
	index  int
	cancel context.CancelFunc
	closed atomic.Bool
}

func (s *stubSource) ReadChunk(ctx context.Context) ([]int16, error) {
	if s.index >= len(s.chunks) {
		s.cancel()
		return nil, ctx.Err()
	}
	chunk := s.chunks[s.index]
	s.index++
	return chunk, nil
}

func (s *stubSource) Close() error {
	s.closed.Store(true)
	return nil
}

// blockingSource blocks in ReadChunk until the context is cancelled,
// mimicking a quiet microphone read.
type blockingSource struct {
	closed atomic.Bool
}

func (s *blockingSource) ReadChunk(ctx context.Context) ([]int16, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *blockingSource) Close() error {
	s.closed.Store(true)
	return nil
}

// failingSource fails immediately with a fatal stream error.
type failingSource struct {
	closed atomic.Bool
}

func (s *failingSource) ReadChunk(ctx context.Context) ([]int16, error) {
	return nil, errors.Newf("device wedged").
		Category(errors.CategoryAudioStream).
		Build()
}

func (s *failingSource) Close() error {
	s.closed.Store(true)
	return nil
}

// stubClassifier returns a fixed probability vector for every prediction,
// or a queued error once.
type stubClassifier struct {
	results []bellnet.Result
	errOnce error
	calls   int
}

func (c *stubClassifier) Predict(matrix mfcc.Matrix) ([]bellnet.Result, error) {
	c.calls++
	if c.errOnce != nil {
		err := c.errOnce
		c.errOnce = nil
		return nil, err
	}
	return c.results, nil
}

func sineChunk(n int) []int16 {
	chunk := make([]int16, n)
	for i := range chunk {
		chunk[i] = int16(16000 * math.Sin(2*math.Pi*440*float64(i)/22050))
	}
	return chunk
}

func collectEvents() (*[]Event, Sink) {
	events := &[]Event{}
	return events, CallbackSink(func(e Event) { *events = append(*events, e) })
}

// TestDecisionRuleEmitsAboveThreshold verifies the confidence threshold
// rule: 0.95 with threshold 0.9 emits, 0.85 does not.
func TestDecisionRuleEmitsAboveThreshold(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		confidence float32
		wantEvents int
	}{
		{"above threshold", 0.95, 1},
		{"below threshold", 0.85, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			settings := loopSettings()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			source := &stubSource{chunks: [][]int16{sineChunk(22050)}, cancel: cancel}
			classifier := &stubClassifier{results: []bellnet.Result{
				{Label: "background", Confidence: 1 - tc.confidence},
				{Label: "bell", Confidence: tc.confidence},
			}}
			events, sink := collectEvents()

			loop := NewLoop(settings, source, mfcc.New(settings), classifier, []Sink{sink}, nil, testLogger())
			require.NoError(t, loop.Run(ctx))

			assert.Len(t, *events, tc.wantEvents)
			assert.Equal(t, StateStopped, loop.State())
			assert.True(t, source.closed.Load(), "source must be closed on exit")
		})
	}
}

// TestEndToEndSineWave runs a synthetic 1 second 22050 Hz sine chunk
// through the real extractor with a stub classifier always reporting bell
// at 0.95 and expects exactly one detection event.
func TestEndToEndSineWave(t *testing.T) {
	t.Parallel()

	settings := loopSettings()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &stubSource{chunks: [][]int16{sineChunk(22050)}, cancel: cancel}
	classifier := &stubClassifier{results: []bellnet.Result{
		{Label: "background", Confidence: 0.1},
		{Label: "bell", Confidence: 0.95},
	}}
	events, sink := collectEvents()

	loop := NewLoop(settings, source, mfcc.New(settings), classifier, []Sink{sink}, nil, testLogger())
	require.NoError(t, loop.Run(ctx))

	require.Len(t, *events, 1)
	event := (*events)[0]
	assert.Equal(t, "bell", event.Label)
	assert.InDelta(t, 0.95, event.Confidence, 1e-6)
	assert.False(t, event.Time.IsZero())
	assert.Equal(t, 1, classifier.calls)
}

// TestNonTargetClassNeverEmits verifies that a confident non-target class
// stays silent regardless of threshold.
func TestNonTargetClassNeverEmits(t *testing.T) {
	t.Parallel()

	settings := loopSettings()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &stubSource{chunks: [][]int16{sineChunk(22050)}, cancel: cancel}
	classifier := &stubClassifier{results: []bellnet.Result{
		{Label: "background", Confidence: 0.99},
		{Label: "bell", Confidence: 0.01},
	}}
	events, sink := collectEvents()

	loop := NewLoop(settings, source, mfcc.New(settings), classifier, []Sink{sink}, nil, testLogger())
	require.NoError(t, loop.Run(ctx))

	assert.Empty(t, *events)
}

// TestRecoverableErrorSkipsCycle verifies that a shape mismatch on one
// cycle is skipped and the loop keeps processing subsequent chunks.
func TestRecoverableErrorSkipsCycle(t *testing.T) {
	t.Parallel()

	settings := loopSettings()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &stubSource{chunks: [][]int16{sineChunk(22050), sineChunk(22050)}, cancel: cancel}
	classifier := &stubClassifier{
		results: []bellnet.Result{
			{Label: "background", Confidence: 0.05},
			{Label: "bell", Confidence: 0.95},
		},
		errOnce: errors.Newf("feature matrix is 39x13 but model expects 40x13").
			Category(errors.CategoryShapeMismatch).
			Build(),
	}
	events, sink := collectEvents()

	loop := NewLoop(settings, source, mfcc.New(settings), classifier, []Sink{sink}, nil, testLogger())
	require.NoError(t, loop.Run(ctx))

	// First cycle failed recoverably, second produced the event.
	assert.Len(t, *events, 1)
	assert.Equal(t, 2, classifier.calls)
	assert.Equal(t, StateStopped, loop.State())
}

// TestFatalStreamErrorStopsLoop verifies that an unrecoverable stream error
// terminates the loop, returns the error and releases the source.
func TestFatalStreamErrorStopsLoop(t *testing.T) {
	t.Parallel()

	settings := loopSettings()
	source := &failingSource{}
	classifier := &stubClassifier{}
	events, sink := collectEvents()

	loop := NewLoop(settings, source, mfcc.New(settings), classifier, []Sink{sink}, nil, testLogger())
	err := loop.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, errors.CategoryAudioStream, errors.Category(err))
	assert.Empty(t, *events)
	assert.Equal(t, StateStopped, loop.State())
	assert.True(t, source.closed.Load(), "source must be closed on fatal error")
}

// TestCancellationDuringBlockingRead verifies that cancelling during the
// blocking read reaches Stopped promptly with no cycles executed.
func TestCancellationDuringBlockingRead(t *testing.T) {
	t.Parallel()

	settings := loopSettings()
	ctx, cancel := context.WithCancel(context.Background())

	source := &blockingSource{}
	classifier := &stubClassifier{}
	events, sink := collectEvents()

	loop := NewLoop(settings, source, mfcc.New(settings), classifier, []Sink{sink}, nil, testLogger())

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// Let the loop enter the blocking read, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}

	assert.Equal(t, StateStopped, loop.State())
	assert.Equal(t, 0, classifier.calls, "no cycles may run after cancellation")
	assert.Empty(t, *events)
	assert.True(t, source.closed.Load())
}

// TestLoopCannotBeReused verifies the state machine rejects a second Run.
func TestLoopCannotBeReused(t *testing.T) {
	t.Parallel()

	settings := loopSettings()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := &stubSource{chunks: nil, cancel: cancel}
	loop := NewLoop(settings, source, mfcc.New(settings), &stubClassifier{}, nil, nil, testLogger())
	require.NoError(t, loop.Run(ctx))

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CategoryValidation, errors.Category(err))
}
