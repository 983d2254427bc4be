package transport

import "time"

// Config holds the stream configuration.
type Config struct {
	// Timeout bounds one request/response exchange when the context has no
	// deadline. Zero means no timeout. Only honoured by connections that
	// support deadlines.
	Timeout time.Duration

	// CommandDelay is the delay after writing a request before reading the reply
	CommandDelay time.Duration
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		Timeout:      5 * time.Second,
		CommandDelay: 0,
	}
}

// Option is a functional option for configuring a Stream.
type Option func(*Config)

// WithTimeout sets the per-request timeout. Default is 5 seconds.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithCommandDelay sets a delay between writing a request and reading its
// reply, for slow links. Default is 0.
func WithCommandDelay(delay time.Duration) Option {
	return func(c *Config) {
		c.CommandDelay = delay
	}
}
