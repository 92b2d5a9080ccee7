package pipeline

import "time"

const (
	// defragmentTTL bounds how long a partially-arrived fragment set is
	// held before it is evicted as unrecoverable.
	defragmentTTL = 5 * time.Second
	// defaultDeJitterBuffer bounds the RxDeJitter reorder window per
	// stream.
	defaultDeJitterBuffer = 64
)
