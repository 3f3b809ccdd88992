package domain

import "errors"

// Error kinds shared across the transport and persistence layers.
// Callers classify failures with errors.Is; concrete causes are wrapped
// around these sentinels.
var (
	// ErrTransport means a communication attempt with a remote
	// component failed.
	ErrTransport = errors.New("transport failure")

	// ErrAuth means the remote component refused the supplied
	// credentials.
	ErrAuth = errors.New("authentication refused")

	// ErrProtocol means a reply did not match the expected grammar.
	ErrProtocol = errors.New("protocol mismatch")

	// ErrPersistence means a durable-store operation failed.
	ErrPersistence = errors.New("persistence failure")

	// ErrNotFound means a requested server is absent from the registry.
	ErrNotFound = errors.New("not found")

	// ErrTimeout means a deadline passed before a reply arrived.
	ErrTimeout = errors.New("timed out")
)
