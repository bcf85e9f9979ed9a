package detection

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/busbell/busbell-go/internal/bellnet"
	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/errors"
	"github.com/busbell/busbell-go/internal/mfcc"
	"github.com/busbell/busbell-go/internal/myaudio"
	"github.com/busbell/busbell-go/internal/telemetry"
)

// State is the lifecycle state of the detection loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Source yields fixed-duration chunks of 16-bit samples.
type Source interface {
	ReadChunk(ctx context.Context) ([]int16, error)
	Close() error
}

// Extractor converts a chunk into a feature matrix.
type Extractor interface {
	Extract(samples []int16) (mfcc.Matrix, error)
}

// Classifier maps a feature matrix to class probabilities.
type Classifier interface {
	Predict(matrix mfcc.Matrix) ([]bellnet.Result, error)
}

// DroppedReporter is implemented by sources that can report capture loss.
type DroppedReporter interface {
	TakeDroppedBytes() uint64
}

// Loop runs the capture → extract → predict → decide cycle until cancelled
// or a fatal error occurs. One cycle completes fully before the next
// begins; the blocking audio read is the natural backpressure, the pipeline
// never runs faster than real time.
type Loop struct {
	settings   *conf.Settings
	source     Source
	extractor  Extractor
	classifier Classifier
	sinks      []Sink
	metrics    *telemetry.Metrics
	log        *slog.Logger

	state atomic.Int32
}

// NewLoop assembles a detection loop. metrics may be nil.
func NewLoop(settings *conf.Settings, source Source, extractor Extractor, classifier Classifier, sinks []Sink, metrics *telemetry.Metrics, log *slog.Logger) *Loop {
	return &Loop{
		settings:   settings,
		source:     source,
		extractor:  extractor,
		classifier: classifier,
		sinks:      sinks,
		metrics:    metrics,
		log:        log,
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Run executes detection cycles until ctx is cancelled or a fatal error
// occurs. The source is closed on every exit path. Cancellation returns
// nil; fatal stream or model errors are returned after resources are
// released.
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return errors.Newf("detection loop already started (state %s)", l.State()).
			Component("detection").
			Category(errors.CategoryValidation).
			Build()
	}

	defer func() {
		if err := l.source.Close(); err != nil {
			l.log.Warn("Error closing audio source", "error", err)
		}
		l.state.Store(int32(StateStopped))
	}()

	target := l.settings.BusBell.TargetClass
	threshold := l.settings.BusBell.Threshold

	for {
		// Cancellation is observed at the top of each cycle; the read
		// below also unblocks on ctx so shutdown never waits longer
		// than one window.
		select {
		case <-ctx.Done():
			l.state.Store(int32(StateStopping))
			return nil
		default:
		}

		chunk, err := l.source.ReadChunk(ctx)
		if err != nil {
			l.state.Store(int32(StateStopping))
			if ctx.Err() != nil {
				return nil
			}
			l.log.Error("Audio stream failed, stopping detection",
				"error", err, "category", errors.Category(err))
			return err
		}

		l.reportDropped()

		if l.settings.Debug {
			level := myaudio.CalculateLevel(chunk)
			l.log.Debug("Captured window", "samples", len(chunk),
				"level", level.Level, "clipping", level.Clipping)
		}

		matrix, err := l.extractor.Extract(chunk)
		if err != nil {
			l.skipCycle("Feature extraction failed", err)
			continue
		}

		results, err := l.classifier.Predict(matrix)
		if err != nil {
			if errors.IsRecoverable(err) {
				l.skipCycle("Prediction failed", err)
				continue
			}
			l.state.Store(int32(StateStopping))
			l.log.Error("Classifier failed, stopping detection",
				"error", err, "category", errors.Category(err))
			return err
		}

		l.metrics.IncCycles()

		best := bellnet.Best(results)
		if best.Label == target && float64(best.Confidence) > threshold {
			l.emit(Event{
				Label:      best.Label,
				Confidence: float64(best.Confidence),
				Time:       time.Now(),
			})
		}
	}
}

// skipCycle logs a recoverable per-cycle error with enough context to
// diagnose configuration drift, then lets the loop continue. One bad
// window must not kill the stream.
func (l *Loop) skipCycle(msg string, err error) {
	category := errors.Category(err)
	l.metrics.IncRecoverableErrors(string(category))
	l.log.Warn(msg, "error", err, "category", category,
		"cycle_time", time.Now().Format(time.RFC3339))
}

// reportDropped surfaces capture overflow so dropped audio is visible, not
// silently skipped.
func (l *Loop) reportDropped() {
	reporter, ok := l.source.(DroppedReporter)
	if !ok {
		return
	}
	if dropped := reporter.TakeDroppedBytes(); dropped > 0 {
		l.metrics.AddDroppedBytes(dropped)
		l.log.Warn("Capture buffer overflow, audio dropped", "bytes", dropped)
	}
}

func (l *Loop) emit(event Event) {
	l.metrics.IncDetections(event.Label)
	for _, sink := range l.sinks {
		if err := sink.Write(event); err != nil {
			l.log.Warn("Detection sink failed", "error", err)
		}
	}
}
