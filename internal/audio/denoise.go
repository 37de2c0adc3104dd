package audio

import (
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	denoiseFrameSize     = 2048
	denoiseHop           = denoiseFrameSize / 2
	denoiseNoiseFraction = 0.1
	denoiseFloor         = 0.1
)

// Denoise applies spectral gating. The noise profile is the mean magnitude per
// bin over the quietest tenth of frames; bins below profile*threshold are
// attenuated. Inputs shorter than one frame are returned unchanged.
func Denoise(samples []float32, threshold float64) []float32 {
	n := denoiseFrameSize
	if len(samples) < n {
		return samples
	}

	window := hann(n)
	fft := fourier.NewFFT(n)
	frames := 1 + (len(samples)-n)/denoiseHop

	spectra := make([][]complex128, frames)
	energy := make([]float64, frames)
	buf := make([]float64, n)
	for i := 0; i < frames; i++ {
		start := i * denoiseHop
		for k := 0; k < n; k++ {
			buf[k] = float64(samples[start+k]) * window[k]
		}
		spectra[i] = fft.Coefficients(nil, buf)
		for _, c := range spectra[i] {
			energy[i] += real(c)*real(c) + imag(c)*imag(c)
		}
	}

	profile := noiseProfile(spectra, energy)

	out := make([]float64, len(samples))
	norm := make([]float64, len(samples))
	for i, spec := range spectra {
		for bin, c := range spec {
			if cmplx.Abs(c) < profile[bin]*threshold {
				spec[bin] = c * complex(denoiseFloor, 0)
			}
		}
		frame := fft.Sequence(nil, spec)
		start := i * denoiseHop
		for k := 0; k < n; k++ {
			// Sequence is unnormalized.
			out[start+k] += frame[k] / float64(n) * window[k]
			norm[start+k] += window[k] * window[k]
		}
	}

	result := make([]float32, len(samples))
	for i := range samples {
		if norm[i] > 1e-8 {
			result[i] = float32(out[i] / norm[i])
		} else {
			result[i] = samples[i]
		}
	}
	return result
}

func noiseProfile(spectra [][]complex128, energy []float64) []float64 {
	order := make([]int, len(energy))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return energy[order[a]] < energy[order[b]] })

	count := int(math.Ceil(float64(len(order)) * denoiseNoiseFraction))
	if count < 1 {
		count = 1
	}
	profile := make([]float64, len(spectra[0]))
	for _, idx := range order[:count] {
		for bin, c := range spectra[idx] {
			profile[bin] += cmplx.Abs(c)
		}
	}
	for bin := range profile {
		profile[bin] /= float64(count)
	}
	return profile
}

func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}
