package pipeline

import "time"

// Config holds the tunables of a run.
type Config struct {
	// PageSize is the number of records fetched per page.
	PageSize int

	// MaxWorkers is the number of concurrent page fetchers.
	MaxWorkers int

	// MaxRetries is the total number of attempts per page, including the
	// first.
	MaxRetries int

	// RetryDelay is the fixed sleep between attempts. The delay blocks
	// only the worker that is retrying, not the pool.
	RetryDelay time.Duration

	// ChunkSize is the maximum records per destination batch write.
	ChunkSize int
}

// DefaultConfig returns the safe defaults: 50-record pages, 5 workers,
// 3 attempts with a 10s delay, 10-record write chunks.
func DefaultConfig() Config {
	return Config{
		PageSize:   50,
		MaxWorkers: 5,
		MaxRetries: 3,
		RetryDelay: 10 * time.Second,
		ChunkSize:  10,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PageSize <= 0 {
		c.PageSize = def.PageSize
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = def.MaxWorkers
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	return c
}

// BatchPlan splits a known total into independent, order-insensitive pages.
type BatchPlan struct {
	Total    int
	PageSize int
}

// Batches returns ceil(Total / PageSize).
func (p BatchPlan) Batches() int {
	if p.Total <= 0 || p.PageSize <= 0 {
		return 0
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// Offset returns the record offset of the zero-based batch index.
func (p BatchPlan) Offset(batch int) int {
	return batch * p.PageSize
}
