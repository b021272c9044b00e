package vad

import (
	"fmt"
	"math"
)

// Energy thresholds per aggressiveness tier. Higher tiers demand more
// energy above the noise floor before a window counts as speech.
var energyRatios = [4]float64{1.5, 2.0, 3.0, 4.5}

const (
	// energyAbsoluteMin rejects near-digital-silence regardless of the
	// adaptive floor.
	energyAbsoluteMin = 0.002
	// noiseFloorDecay is the EMA weight for updating the noise floor
	// from silent windows.
	noiseFloorDecay = 0.05
	initialFloor    = 0.01
)

// Energy is an RMS-energy detector with an adaptive noise floor. A
// window is speech when its RMS exceeds the floor by the tier ratio.
type Energy struct {
	ratio float64
	floor float64
}

// NewEnergy creates an energy detector. Aggressiveness ranges 0 (most
// permissive) to 3 (most restrictive).
func NewEnergy(aggressiveness int) (*Energy, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("aggressiveness %d out of range [0,3]", aggressiveness)
	}
	return &Energy{ratio: energyRatios[aggressiveness], floor: initialFloor}, nil
}

// IsSpeech classifies one window of float32 samples.
func (e *Energy) IsSpeech(samples []float32) (bool, error) {
	if len(samples) == 0 {
		return false, fmt.Errorf("empty vad window")
	}

	rms := rms(samples)
	speech := rms >= energyAbsoluteMin && rms >= e.floor*e.ratio
	if !speech {
		e.floor += noiseFloorDecay * (rms - e.floor)
		if e.floor < energyAbsoluteMin/2 {
			e.floor = energyAbsoluteMin / 2
		}
	}
	return speech, nil
}

// Reset restores the initial noise floor.
func (e *Energy) Reset() {
	e.floor = initialFloor
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
