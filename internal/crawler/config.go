package crawler

import (
	"fmt"
	"time"
)

// Defaults applied by EngineConfig.withDefaults.
const (
	DefaultMaxDepth        = 10
	DefaultWorkers         = 1
	DefaultFinalizeTimeout = 10 * time.Second
	DefaultEventTopic      = "crawl-jobs"
)

// EngineConfig captures the knobs that influence a traversal.
// This struct is decoupled from Viper so the engine can be tested
// independently of configuration loading.
type EngineConfig struct {
	// Workers is the number of goroutines draining the frontier. One
	// worker yields a strictly serialized depth-first crawl.
	Workers int
	// EventTopic names the topic job events are published to.
	EventTopic string
	// FinalizeTimeout bounds the store writes made after a crawl ends,
	// including after cancellation.
	FinalizeTimeout time.Duration
}

// Validate checks for obviously bad configuration combinations.
func (c EngineConfig) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("crawler.workers must be >= 0")
	}
	if c.FinalizeTimeout < 0 {
		return fmt.Errorf("crawler.finalize_timeout must be >= 0")
	}
	return nil
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = DefaultFinalizeTimeout
	}
	if c.EventTopic == "" {
		c.EventTopic = DefaultEventTopic
	}
	return c
}
