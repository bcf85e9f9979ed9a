package detection

import (
	"fmt"
	"io"
	"time"

	"github.com/busbell/busbell-go/internal/bellnet"
	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/errors"
	"github.com/busbell/busbell-go/internal/myaudio"
)

// AnalyzeFile runs every analysis window of a WAV file through the same
// extract → predict → decide path as realtime mode and writes one line per
// window whose best class clears the threshold. The trailing partial window
// is zero padded by the extractor, matching how training features were cut.
func AnalyzeFile(settings *conf.Settings, extractor Extractor, classifier Classifier, path string, out io.Writer) error {
	windows, err := myaudio.ReadWAVFile(path, settings)
	if err != nil {
		return err
	}

	windowDur := time.Duration(settings.Audio.WindowSec * float64(time.Second))
	detections := 0

	for i, window := range windows {
		matrix, err := extractor.Extract(window)
		if err != nil {
			// A malformed window in a file is worth reporting but not
			// worth abandoning the rest of the file for.
			fmt.Fprintf(out, "window %d: skipped (%v)\n", i, err)
			continue
		}

		results, err := classifier.Predict(matrix)
		if err != nil {
			if errors.IsRecoverable(err) {
				fmt.Fprintf(out, "window %d: skipped (%v)\n", i, err)
				continue
			}
			return err
		}

		best := bellnet.Best(results)
		if best.Label == settings.BusBell.TargetClass && float64(best.Confidence) > settings.BusBell.Threshold {
			offset := time.Duration(i) * windowDur
			fmt.Fprintf(out, "%s  %s  %.1f%%\n", formatOffset(offset), best.Label, best.Confidence*100)
			detections++
		}
	}

	fmt.Fprintf(out, "Analyzed %d windows, %d detections\n", len(windows), detections)
	return nil
}

// formatOffset renders a position in the file as m:ss.
func formatOffset(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
