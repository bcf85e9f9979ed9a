package bellnet

import (
	tflite "github.com/tphakala/go-tflite"

	"github.com/busbell/busbell-go/internal/errors"
	"github.com/busbell/busbell-go/internal/mfcc"
)

// Predict runs one forward pass over a feature matrix and returns the class
// probability distribution paired with labels, index-aligned with the label
// table. The matrix shape is checked explicitly: a drifted hop length or
// coefficient count must fail here rather than silently corrupt predictions.
// Inference is deterministic, identical input yields identical output.
func (bn *BellNet) Predict(matrix mfcc.Matrix) ([]Result, error) {
	if matrix.NumFrames() != bn.frames || matrix.NumCoefficients() != bn.coeffs {
		return nil, errors.Newf("feature matrix is %dx%d but model expects %dx%d",
			matrix.NumFrames(), matrix.NumCoefficients(), bn.frames, bn.coeffs).
			Component("bellnet").
			Category(errors.CategoryShapeMismatch).
			Context("got_frames", matrix.NumFrames()).
			Context("got_coeffs", matrix.NumCoefficients()).
			Context("want_frames", bn.frames).
			Context("want_coeffs", bn.coeffs).
			Build()
	}

	bn.mu.Lock()
	defer bn.mu.Unlock()

	input := bn.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, errors.Newf("cannot get model input tensor").
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Build()
	}

	// Flatten time-major into the input tensor; the leading batch
	// dimension of 1 is implicit in the layout.
	data := input.Float32s()
	for t, row := range matrix {
		for c, v := range row {
			data[t*bn.coeffs+c] = float32(v)
		}
	}

	if status := bn.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.Newf("tensor invoke failed: %v", status).
			Component("bellnet").
			Category(errors.CategoryModelInit).
			Build()
	}

	output := bn.interpreter.GetOutputTensor(0)
	probabilities := make([]float32, len(bn.Labels))
	copy(probabilities, output.Float32s())

	results := make([]Result, len(bn.Labels))
	for i, label := range bn.Labels {
		results[i] = Result{Label: label, Confidence: probabilities[i]}
	}
	return results, nil
}

// Best returns the result with the highest confidence.
func Best(results []Result) Result {
	var best Result
	for _, r := range results {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best
}
