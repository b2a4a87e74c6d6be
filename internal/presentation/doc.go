// Package presentation runs the per-session render loops.
//
// A Manager probes device capability and starts either a hardware loop,
// driven by a stereoscopic display's own frame callbacks, or a windowed
// fallback loop with orbit-camera controls. Both loops stop cooperatively:
// ending a session flips a flag the next frame observes.
package presentation
