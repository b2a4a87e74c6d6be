// Package redis implements Redis-backed session and device stores for
// multi-instance deployments.
//
// Records are JSON-encoded with a safety TTL so abandoned keys age out even
// if no sweep ever reaches them. Single-instance deployments use the in-memory
// stores instead.
package redis
