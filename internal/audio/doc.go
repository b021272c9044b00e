// Package audio provides the PCM primitives shared by the capture, VAD,
// STT and TTS stages: audio formats, byte-depth conversion between 16-bit
// integer and 32-bit float PCM, duration arithmetic and WAV encoding.
package audio
