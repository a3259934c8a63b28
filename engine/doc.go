// Package engine wires the bulwark subsystems together: the DLQ service
// and replayer over a chosen store, the background pruner, the circuit
// breaker registry, and the health tracker, all under one lifecycle.
//
// This package exists to break the import cycle: the root bulwark
// package defines the sentinel errors and Config (imported by dlq,
// breaker, and the store backends) and so cannot import those packages
// back. The engine package sits above all subsystem packages and below
// the application layer.
package engine
