package detection

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/busbell/busbell-go/internal/bellnet"
	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/mfcc"
	"github.com/busbell/busbell-go/internal/myaudio"
	"github.com/busbell/busbell-go/internal/telemetry"
)

// RunRealtime wires the live pipeline together and runs it until an
// interrupt or a fatal error: model load, capture device, feature
// extractor, sinks and optional telemetry endpoint.
func RunRealtime(settings *conf.Settings) error {
	log := slog.Default()

	extractor := mfcc.New(settings)

	classifier, err := bellnet.New(settings, extractor.NumFrames(), extractor.NumCoefficients())
	if err != nil {
		return err
	}
	defer classifier.Delete()

	log.Info("Classifier loaded",
		"model", settings.BusBell.ModelPath,
		"classes", len(classifier.Labels),
		"frames", extractor.NumFrames(),
		"coefficients", extractor.NumCoefficients())

	capture, err := myaudio.NewCapture(settings, log)
	if err != nil {
		return err
	}
	if err := capture.Start(); err != nil {
		_ = capture.Close()
		return err
	}

	sinks := []Sink{ConsoleSink{}}
	if settings.Realtime.Log.Enabled {
		fileSink, err := NewLogFileSink(settings.Realtime.Log.Path)
		if err != nil {
			_ = capture.Close()
			return err
		}
		defer func() { _ = fileSink.Close() }()
		sinks = append(sinks, fileSink)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	var metrics *telemetry.Metrics
	if settings.Realtime.Telemetry.Enabled {
		metrics = telemetry.NewMetrics()
		endpoint := telemetry.NewEndpoint(settings.Realtime.Telemetry.Listen, metrics, log)
		endpoint.Start(ctx, &wg)
	}

	log.Info("Listening for target sound... (Ctrl+C to stop)",
		"target", settings.BusBell.TargetClass,
		"threshold", settings.BusBell.Threshold,
		"device", capture.Name())

	loop := NewLoop(settings, capture, extractor, classifier, sinks, metrics, log)
	err = loop.Run(ctx)

	stop()
	wg.Wait()

	log.Info("Detection stopped", "state", loop.State().String())
	return err
}
