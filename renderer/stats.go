package renderer

import "time"

// Per-frame render timing.
type FrameStat struct {
	Frame      int
	RenderTime time.Duration
}

// FrameStats summarizes one render run.
type FrameStats struct {
	Frames []FrameStat

	// Total render time across all frames.
	RenderTime time.Duration

	// Out-of-core cache counters. The renderer does not fill them, so they
	// stay zero; the out-of-core tracer logs its cache counters itself.
	CacheHits   int64
	CacheMisses int64
	CacheEvicts int64
}
