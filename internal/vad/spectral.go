package vad

import (
	"fmt"
	"math"
)

const (
	// Voiced speech is tonal: low spectral flatness, moderate
	// zero-crossing rate. Broadband noise fails both.
	maxFlatness = 0.5
	maxZCR      = 0.35

	flatnessBands   = 32
	flatnessMinHz   = 100
	flatnessMaxHz   = 4000
	flatnessEpsilon = 1e-10
)

// Spectral confirms speech by shape rather than level: it measures
// spectral flatness over a coarse filterbank and the zero-crossing rate.
// It is stateless and meant to back a level-based detector, not to run
// alone.
type Spectral struct{}

// NewSpectral creates a spectral confirmer.
func NewSpectral() *Spectral {
	return &Spectral{}
}

// IsSpeech classifies one window of float32 samples.
func (s *Spectral) IsSpeech(samples []float32) (bool, error) {
	if len(samples) == 0 {
		return false, fmt.Errorf("empty vad window")
	}
	return flatness(samples) <= maxFlatness && zcr(samples) <= maxZCR, nil
}

// Reset is a no-op; the confirmer carries no state.
func (s *Spectral) Reset() {}

// flatness computes spectral flatness (geometric over arithmetic mean of
// band powers) on a Goertzel filterbank spread across the speech band.
// 1.0 is white noise, tonal signals approach 0.
func flatness(samples []float32) float64 {
	step := float64(flatnessMaxHz-flatnessMinHz) / float64(flatnessBands-1)

	var logSum, sum float64
	for b := 0; b < flatnessBands; b++ {
		freq := flatnessMinHz + step*float64(b)
		p := goertzelPower(samples, freq) + flatnessEpsilon
		logSum += math.Log(p)
		sum += p
	}
	geo := math.Exp(logSum / flatnessBands)
	return geo / (sum / flatnessBands)
}

// goertzelPower evaluates the signal power at a single frequency.
func goertzelPower(samples []float32, freq float64) float64 {
	omega := 2 * math.Pi * freq / SampleRate
	coeff := 2 * math.Cos(omega)

	var s0, s1, s2 float64
	for _, x := range samples {
		s0 = float64(x) + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}
	power := s1*s1 + s2*s2 - coeff*s1*s2
	return power / float64(len(samples))
}

// zcr returns the zero-crossing rate in [0, 1].
func zcr(samples []float32) float64 {
	var crossings int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples)-1)
}
