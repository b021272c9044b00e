// Package device manages the virtual audio and display devices the
// browser provider runs against: a private PulseAudio daemon, a pipe
// sink acting as virtual speaker, a pipe source acting as virtual
// microphone, and an Xvfb display with an optional VNC server.
//
// Devices publish their identity through a shared environment (DISPLAY,
// PULSE_SERVER, PULSE_SINK, PULSE_SOURCE) that the browser process
// inherits. Startup readiness is polled with a fixed bound; after the
// bound the device proceeds anyway and later operations surface the
// failure.
package device
