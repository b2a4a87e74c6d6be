// Package broadcast pushes live presentation state to WebSocket clients
// using the actor pattern.
//
// The Broadcaster snapshots camera, pose and scene state on a tick and fans
// out to the clients watching each presentation. A single goroutine owns all
// connection maps (no mutexes); per-connection write goroutines keep slow
// clients from stalling the tick.
package broadcast
