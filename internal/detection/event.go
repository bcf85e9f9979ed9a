// Package detection orchestrates the capture, feature extraction and
// inference cycle and applies the confidence threshold decision rule.
package detection

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/busbell/busbell-go/internal/logging"
)

// Event is an immutable record of one positive detection.
type Event struct {
	Label      string    // detected class label
	Confidence float64   // classifier confidence, 0.0-1.0
	Time       time.Time // when the decision rule fired
}

// Sink receives one Event per positive detection.
type Sink interface {
	Write(event Event) error
}

// ConsoleSink prints detections to stdout, one line per event.
type ConsoleSink struct{}

func (ConsoleSink) Write(event Event) error {
	_, err := fmt.Printf("🔔 %s detected (%.1f%% confidence)\n", event.Label, event.Confidence*100)
	return err
}

// LogFileSink appends detections to a rotating log file.
type LogFileSink struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewLogFileSink opens (and rotates) the detection log at path.
func NewLogFileSink(path string) (*LogFileSink, error) {
	w, err := logging.NewRotatingWriter(path)
	if err != nil {
		return nil, err
	}
	return &LogFileSink{w: w}, nil
}

func (s *LogFileSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := fmt.Sprintf("%s %s %.4f\n", event.Time.Format("2006-01-02 15:04:05"), event.Label, event.Confidence)
	_, err := s.w.Write([]byte(line))
	return err
}

// Close releases the underlying log file.
func (s *LogFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// CallbackSink invokes a function for every event, for embedding the loop
// in other programs and for tests.
type CallbackSink func(Event)

func (f CallbackSink) Write(event Event) error {
	f(event)
	return nil
}
