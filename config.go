package datastruct

import "time"

// Config holds configuration for a structure manager.
type Config struct {
	// PurgeBatchSize is the number of set item keys removed per cache call
	// while purging a removed set.
	PurgeBatchSize int

	// PurgeRate caps purge batches per second on each node. Zero disables
	// pacing.
	PurgeRate float64

	// RetryAttempts bounds how many times a transient cache failure is
	// retried before it is surfaced.
	RetryAttempts int

	// RetryInitialDelay and RetryMaxDelay shape the exponential backoff
	// between retried cache calls.
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// TakePollInterval is how often a blocking Take re-reads the queue when
	// no header change has been observed.
	TakePollInterval time.Duration

	// RemoteCallTimeout bounds how long a node spends executing one block
	// or purge request received from another node. Zero means no limit.
	RemoteCallTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PurgeBatchSize:    100,
		RetryAttempts:     100,
		RetryInitialDelay: 10 * time.Millisecond,
		RetryMaxDelay:     500 * time.Millisecond,
		TakePollInterval:  time.Second,
	}
}

// Normalize returns a copy of c with zero fields replaced by defaults.
func (c Config) Normalize() Config {
	d := DefaultConfig()
	if c.PurgeBatchSize <= 0 {
		c.PurgeBatchSize = d.PurgeBatchSize
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = d.RetryInitialDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.TakePollInterval <= 0 {
		c.TakePollInterval = d.TakePollInterval
	}
	return c
}
