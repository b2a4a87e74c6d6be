// Package domain defines the core domain types and interfaces of the
// immersive engine.
//
// This package contains concept-oriented files (errors.go, session.go,
// presentation.go, scene.go, etc.) with shared types and cross-cutting
// interfaces. No implementation code - just contracts. Prevents circular
// imports by keeping interfaces on the consumer side.
package domain
