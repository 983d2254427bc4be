package flash

// Config holds the client configuration.
type Config struct {
	// ProgressCallback is called during scans and programming to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// CacheSize is the number of devices whose geometry is kept resolved.
	// Default is 1: resolving another device evicts the previous one.
	CacheSize int

	// Cache is a caller-owned geometry cache. When set, CacheSize is ignored
	// and the cache may be shared between clients of the same services.
	Cache *GeometryCache

	// VerifyAfterWrite enables reading every programmed page back during Program
	VerifyAfterWrite bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		CacheSize:        1,
		VerifyAfterWrite: false,
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Config)

// WithProgressCallback sets a callback function to track progress.
//
// Example:
//
//	client := flash.New(svc, attrs,
//	    flash.WithProgressCallback(func(p flash.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the client operations.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithCacheSize sets how many devices keep their geometry resolved at once.
// Values below 1 are ignored.
//
// Example:
//
//	client := flash.New(svc, attrs, flash.WithCacheSize(4))
func WithCacheSize(size int) Option {
	return func(c *Config) {
		if size >= 1 {
			c.CacheSize = size
		}
	}
}

// WithGeometryCache injects a caller-owned geometry cache.
func WithGeometryCache(cache *GeometryCache) Option {
	return func(c *Config) {
		c.Cache = cache
	}
}

// WithVerifyAfterWrite enables or disables page read-back during Program.
// Default is false.
func WithVerifyAfterWrite(verify bool) Option {
	return func(c *Config) {
		c.VerifyAfterWrite = verify
	}
}
