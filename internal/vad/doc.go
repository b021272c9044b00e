// Package vad provides voice activity detection over fixed-size PCM
// windows. Detectors classify one window at a time; Stream buffers
// arbitrary capture chunks into windows and attaches the classification,
// keeping one window of look-back so the window just before a speech
// onset is also delivered as speech.
package vad
