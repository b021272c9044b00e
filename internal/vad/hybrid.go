package vad

// Hybrid runs the energy detector as the fast path and asks the spectral
// confirmer only at speech onsets after silence. Sustained speech is not
// re-confirmed, so a held vowel with drifting spectrum does not cut out
// mid-utterance.
type Hybrid struct {
	energy   *Energy
	spectral *Spectral
	inSpeech bool
}

// NewHybrid creates a hybrid detector with the given energy
// aggressiveness.
func NewHybrid(aggressiveness int) (*Hybrid, error) {
	energy, err := NewEnergy(aggressiveness)
	if err != nil {
		return nil, err
	}
	return &Hybrid{energy: energy, spectral: NewSpectral()}, nil
}

// IsSpeech classifies one window of float32 samples.
func (h *Hybrid) IsSpeech(samples []float32) (bool, error) {
	loud, err := h.energy.IsSpeech(samples)
	if err != nil {
		return false, err
	}
	if !loud {
		h.inSpeech = false
		return false, nil
	}
	if h.inSpeech {
		return true, nil
	}

	confirmed, err := h.spectral.IsSpeech(samples)
	if err != nil {
		return false, err
	}
	h.inSpeech = confirmed
	return confirmed, nil
}

// Reset clears the onset state and the energy noise floor.
func (h *Hybrid) Reset() {
	h.inSpeech = false
	h.energy.Reset()
	h.spectral.Reset()
}
