package ports

// FileWatcher observes the input tree and feeds the work queue.
type FileWatcher interface {
	// Start begins recursive observation, creating the input dir if absent.
	Start() error
	// Stop halts observation and blocks until fully stopped. Idempotent.
	Stop()
}

// DocumentPipeline is the single-worker consumer of the work queue.
type DocumentPipeline interface {
	// Start launches the worker loop. Idempotent.
	Start()
	// Stop signals the worker and joins it. Returns within one poll
	// interval of the last in-flight item finishing. Idempotent.
	Stop()
}
