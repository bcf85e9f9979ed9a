// Package mfcc converts fixed-duration PCM windows into mel-frequency
// cepstral coefficient matrices, the feature representation the bell
// classifier was trained on. The transform is deterministic: identical
// samples and parameters always produce a bit-identical matrix.
package mfcc

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/busbell/busbell-go/internal/conf"
	"github.com/busbell/busbell-go/internal/errors"
)

// Matrix is a time-major feature matrix: rows are analysis frames, columns
// are cepstral coefficients.
type Matrix [][]float64

// NumFrames returns the number of time steps in the matrix.
func (m Matrix) NumFrames() int {
	return len(m)
}

// NumCoefficients returns the coefficient count per frame, 0 when empty.
func (m Matrix) NumCoefficients() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// logFloor guards the log of the mel spectrum against zero energy bins.
const logFloor = 1e-10

// Extractor computes MFCC matrices for a fixed analysis configuration.
// All derived tables (Hann window, mel filterbank, DCT basis) are built
// once at construction so Extract does no allocation-heavy setup per call.
type Extractor struct {
	sampleRate    int
	windowSamples int
	fftSize       int
	hopLength     int
	numCoeff      int
	numMel        int

	fft     *fourier.FFT
	hann    []float64
	melBank [][]float64 // numMel x (fftSize/2 + 1)
	dct     [][]float64 // numCoeff x numMel, orthonormal DCT-II basis
}

// New builds an Extractor from the audio settings.
func New(settings *conf.Settings) *Extractor {
	a := settings.Audio
	ex := &Extractor{
		sampleRate:    a.SampleRate,
		windowSamples: settings.WindowSamples(),
		fftSize:       a.FFTSize,
		hopLength:     a.HopLength,
		numCoeff:      a.NumCoefficients,
		numMel:        a.NumMelBands,
	}

	ex.fft = fourier.NewFFT(ex.fftSize)
	ex.hann = hannWindow(ex.fftSize)
	ex.melBank = melFilterbank(ex.numMel, ex.fftSize, ex.sampleRate)
	ex.dct = dctBasis(ex.numCoeff, ex.numMel)

	return ex
}

// NumFrames returns the frame count every extracted matrix will have,
// using left-aligned framing over one analysis window.
func (ex *Extractor) NumFrames() int {
	return 1 + (ex.windowSamples-ex.fftSize)/ex.hopLength
}

// NumCoefficients returns the coefficient count per frame.
func (ex *Extractor) NumCoefficients() int {
	return ex.numCoeff
}

// Extract converts one window of 16-bit PCM samples into a feature matrix.
// Samples are normalized to [-1.0, 1.0) before the spectral transform.
func (ex *Extractor) Extract(samples []int16) (Matrix, error) {
	floats := make([]float64, len(samples))
	for i, s := range samples {
		floats[i] = float64(s) / conf.SampleMax
	}
	return ex.ExtractFloats(floats)
}

// ExtractFloats converts one window of normalized samples into a feature
// matrix. Windows shorter than the configured duration are zero padded at
// the end, longer ones are truncated, so the output shape is constant
// regardless of capture jitter.
func (ex *Extractor) ExtractFloats(samples []float64) (Matrix, error) {
	switch {
	case len(samples) < ex.windowSamples:
		padded := make([]float64, ex.windowSamples)
		copy(padded, samples)
		samples = padded
	case len(samples) > ex.windowSamples:
		samples = samples[:ex.windowSamples]
	}

	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, errors.Newf("non-finite sample at offset %d", i).
				Component("mfcc").
				Category(errors.CategoryFeatureExtraction).
				Context("offset", i).
				Build()
		}
	}

	numFrames := ex.NumFrames()
	numBins := ex.fftSize/2 + 1

	matrix := make(Matrix, numFrames)
	frame := make([]float64, ex.fftSize)
	spectrum := make([]complex128, numBins)
	power := make([]float64, numBins)
	melEnergy := make([]float64, ex.numMel)

	for t := 0; t < numFrames; t++ {
		offset := t * ex.hopLength
		for i := 0; i < ex.fftSize; i++ {
			frame[i] = samples[offset+i] * ex.hann[i]
		}

		spectrum = ex.fft.Coefficients(spectrum, frame)
		for k, c := range spectrum {
			re, im := real(c), imag(c)
			power[k] = re*re + im*im
		}

		for m := 0; m < ex.numMel; m++ {
			var sum float64
			bank := ex.melBank[m]
			for k := 0; k < numBins; k++ {
				sum += bank[k] * power[k]
			}
			melEnergy[m] = 10 * math.Log10(math.Max(sum, logFloor))
		}

		coeffs := make([]float64, ex.numCoeff)
		for c := 0; c < ex.numCoeff; c++ {
			var sum float64
			basis := ex.dct[c]
			for m := 0; m < ex.numMel; m++ {
				sum += basis[m] * melEnergy[m]
			}
			coeffs[c] = sum
		}
		matrix[t] = coeffs
	}

	return matrix, nil
}

// hannWindow returns a periodic Hann window of the given size.
func hannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
	}
	return window
}

// hzToMel converts frequency to mel using the Slaney formula: linear below
// 1 kHz, logarithmic above.
func hzToMel(hz float64) float64 {
	const (
		fsp       = 200.0 / 3.0
		minLogHz  = 1000.0
		minLogMel = minLogHz / fsp
	)
	logStep := math.Log(6.4) / 27.0
	if hz >= minLogHz {
		return minLogMel + math.Log(hz/minLogHz)/logStep
	}
	return hz / fsp
}

// melToHz is the inverse of hzToMel.
func melToHz(mel float64) float64 {
	const (
		fsp       = 200.0 / 3.0
		minLogHz  = 1000.0
		minLogMel = minLogHz / fsp
	)
	logStep := math.Log(6.4) / 27.0
	if mel >= minLogMel {
		return minLogHz * math.Exp(logStep*(mel-minLogMel))
	}
	return mel * fsp
}

// melFilterbank builds numMel triangular filters over the FFT bins with
// Slaney-style area normalization, spanning 0 Hz to Nyquist.
func melFilterbank(numMel, fftSize, sampleRate int) [][]float64 {
	numBins := fftSize/2 + 1
	maxMel := hzToMel(float64(sampleRate) / 2)

	// Band edge frequencies in Hz, numMel+2 points from 0 to Nyquist.
	edges := make([]float64, numMel+2)
	for i := range edges {
		edges[i] = melToHz(maxMel * float64(i) / float64(numMel+1))
	}

	bank := make([][]float64, numMel)
	for m := 0; m < numMel; m++ {
		filter := make([]float64, numBins)
		lower, center, upper := edges[m], edges[m+1], edges[m+2]
		enorm := 2.0 / (upper - lower)
		for k := 0; k < numBins; k++ {
			freq := float64(k) * float64(sampleRate) / float64(fftSize)
			switch {
			case freq <= lower || freq >= upper:
				// outside the triangle
			case freq <= center:
				filter[k] = enorm * (freq - lower) / (center - lower)
			default:
				filter[k] = enorm * (upper - freq) / (upper - center)
			}
		}
		bank[m] = filter
	}
	return bank
}

// dctBasis builds the first numCoeff rows of the orthonormal DCT-II basis
// over numMel points.
func dctBasis(numCoeff, numMel int) [][]float64 {
	basis := make([][]float64, numCoeff)
	scale0 := math.Sqrt(1.0 / float64(numMel))
	scale := math.Sqrt(2.0 / float64(numMel))
	for c := 0; c < numCoeff; c++ {
		row := make([]float64, numMel)
		s := scale
		if c == 0 {
			s = scale0
		}
		for m := 0; m < numMel; m++ {
			row[m] = s * math.Cos(math.Pi*float64(c)*(float64(m)+0.5)/float64(numMel))
		}
		basis[c] = row
	}
	return basis
}
