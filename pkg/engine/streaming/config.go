package streaming

import (
	"errors"
	"flag"
)

// Config configures stream buffering and operator scheduling.
type Config struct {
	// FeedCapacity is the number of batches buffered per subscriber of a
	// table or view stream.
	FeedCapacity int `yaml:"feed_capacity"`
	// HandoffCapacity is the number of batches an operator may produce
	// ahead of its consumer.
	HandoffCapacity int `yaml:"handoff_capacity"`
}

func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.FeedCapacity, prefix+"feed-capacity", 0, "Number of batches buffered for every subscriber of a table or view stream. 0 hands batches over synchronously.")
	f.IntVar(&cfg.HandoffCapacity, prefix+"handoff-capacity", 0, "Number of batches a streaming operator may produce ahead of its consumer. 0 hands batches over synchronously.")
}

func (cfg *Config) Validate() error {
	if cfg.FeedCapacity < 0 {
		return errors.New("feed capacity must not be negative")
	}
	if cfg.HandoffCapacity < 0 {
		return errors.New("handoff capacity must not be negative")
	}
	return nil
}
