// bellnet.go bell classifier model specific code
package bellnet

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"sync"

	tflite "github.com/tphakala/go-tflite"

	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/errors"
)

// Result pairs a class label with its predicted confidence.
type Result struct {
	Label      string
	Confidence float32
}

// BellNet wraps the TensorFlow Lite interpreter for the bell classifier.
// It is loaded once at startup and read-only afterwards; Predict guards
// interpreter access with a mutex since tensor buffers are shared state.
type BellNet struct {
	Settings *conf.Settings
	Labels   []string

	interpreter *tflite.Interpreter
	model       *tflite.Model

	// Expected input shape, fixed by the model artifact.
	frames int
	coeffs int

	mu sync.Mutex
}

// New loads the model artifact and label table and validates that the model
// input shape matches what the configured feature extraction produces and
// that the output width matches the label count. Any mismatch is a startup
// failure, not something to discover on the first prediction.
func New(settings *conf.Settings, expectedFrames, expectedCoeffs int) (*BellNet, error) {
	bn := &BellNet{Settings: settings}

	if err := bn.loadLabels(); err != nil {
		return nil, err
	}
	if err := bn.initializeModel(); err != nil {
		return nil, err
	}
	if err := bn.validateShape(expectedFrames, expectedCoeffs); err != nil {
		bn.Delete()
		return nil, err
	}

	return bn, nil
}

// loadLabels reads the class name table, one label per line, index-aligned
// with the model's output vector.
func (bn *BellNet) loadLabels() error {
	path := bn.Settings.BusBell.LabelPath
	file, err := os.Open(path) //nolint:gosec // G304: path is from application settings
	if err != nil {
		return errors.New(fmt.Errorf("failed to open label file: %w", err)).
			Component("bellnet").
			Category(errors.CategoryLabelLoad).
			Context("path", path).
			Build()
	}
	defer func() { _ = file.Close() }()

	var labels []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			labels = append(labels, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.New(fmt.Errorf("failed to read label file: %w", err)).
			Component("bellnet").
			Category(errors.CategoryLabelLoad).
			Context("path", path).
			Build()
	}
	if len(labels) == 0 {
		return errors.Newf("label file %s contains no labels", path).
			Component("bellnet").
			Category(errors.CategoryLabelLoad).
			Context("path", path).
			Build()
	}

	bn.Labels = labels
	return nil
}

// initializeModel loads the TFLite artifact and allocates the interpreter.
func (bn *BellNet) initializeModel() error {
	path := bn.Settings.BusBell.ModelPath
	modelData, err := os.ReadFile(path) //nolint:gosec // G304: path is from application settings
	if err != nil {
		return errors.New(fmt.Errorf("failed to read model file: %w", err)).
			Component("bellnet").
			Category(errors.CategoryModelLoad).
			Context("path", path).
			Build()
	}

	model := tflite.NewModel(modelData)
	if model == nil {
		return errors.Newf("cannot load TensorFlow Lite model from %s", path).
			Component("bellnet").
			Category(errors.CategoryModelLoad).
			Context("path", path).
			Context("model_size_bytes", len(modelData)).
			Build()
	}
	bn.model = model

	threads := bn.Settings.BusBell.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)

	bn.interpreter = tflite.NewInterpreter(model, options)
	if bn.interpreter == nil {
		bn.model.Delete()
		bn.model = nil
		return errors.Newf("cannot create interpreter for model %s", path).
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Context("path", path).
			Build()
	}
	if status := bn.interpreter.AllocateTensors(); status != tflite.OK {
		bn.Delete()
		return errors.Newf("tensor allocation failed: %v", status).
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Context("path", path).
			Build()
	}

	return nil
}

// validateShape checks the model tensors against the feature extraction
// configuration and the label table.
func (bn *BellNet) validateShape(expectedFrames, expectedCoeffs int) error {
	input := bn.interpreter.GetInputTensor(0)
	if input == nil {
		return errors.Newf("cannot get model input tensor").
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Build()
	}

	// Expected layout is [batch, frames, coeffs]; batch must be 1.
	dims := input.NumDims()
	if dims != 3 || input.Dim(0) != 1 {
		return errors.Newf("unexpected model input rank %d, want [1, frames, coeffs]", dims).
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Context("num_dims", dims).
			Build()
	}
	if input.Dim(1) != expectedFrames || input.Dim(2) != expectedCoeffs {
		return errors.Newf("model expects input %dx%d but feature extraction produces %dx%d",
			input.Dim(1), input.Dim(2), expectedFrames, expectedCoeffs).
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Context("model_frames", input.Dim(1)).
			Context("model_coeffs", input.Dim(2)).
			Context("config_frames", expectedFrames).
			Context("config_coeffs", expectedCoeffs).
			Build()
	}
	bn.frames = expectedFrames
	bn.coeffs = expectedCoeffs

	output := bn.interpreter.GetOutputTensor(0)
	if output == nil {
		return errors.Newf("cannot get model output tensor").
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Build()
	}
	outSize := output.Dim(output.NumDims() - 1)
	if outSize != len(bn.Labels) {
		return errors.Newf("model has %d output classes but label file lists %d",
			outSize, len(bn.Labels)).
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Context("model_classes", outSize).
			Context("label_count", len(bn.Labels)).
			Build()
	}

	return nil
}

// Delete frees the interpreter and model. Called once at process shutdown.
func (bn *BellNet) Delete() {
	if bn.interpreter != nil {
		bn.interpreter.Delete()
		bn.interpreter = nil
	}
	if bn.model != nil {
		bn.model.Delete()
		bn.model = nil
	}
}
