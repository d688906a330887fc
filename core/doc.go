// Package core defines the shared vocabulary of the runloop engine: the
// streamed Event union, the Message union reconstructed from events, the
// Request/Response shapes accepted and produced by the orchestrator, action
// specifications, the state-store and guardrails contracts, and the error
// taxonomy. Higher layers (bus, aggregate, orchestrator, providers) depend
// only on this package so that concrete transports, model SDKs and storage
// backends stay swappable.
package core
