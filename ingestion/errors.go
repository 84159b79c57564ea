package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when an index store is not provided.
	ErrStoreRequired = errors.New("index store required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrPipelineClosed is returned by Submit after Release.
	ErrPipelineClosed = errors.New("pipeline closed")

	// ErrQueueFull is returned by Submit when the asynchronous queue is at capacity.
	ErrQueueFull = errors.New("ingestion queue full")
)
