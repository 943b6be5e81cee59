package core

// Sink consumes flushed buffer contents on the transfer's destination
type Sink interface {
	// Flush writes one buffer's worth of data to the destination
	Flush(p []byte) error

	// Close finishes the destination, forcing any deferred durability work
	Close() error
}

// ProgressObserver receives byte-count updates during a transfer
type ProgressObserver interface {
	// Update reports progress; total is -1 while unknown
	Update(done, total int64)
}
