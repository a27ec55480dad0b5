// Package config holds the process-wide option surface: tier thresholds,
// cache sizes, compression parameters and subscription limits. A struct of
// defaults plus functional overrides, never a singleton.
package config

import "time"

// CompressionStrategy mirrors the zlib strategy enumeration.
type CompressionStrategy string

const (
	StrategyDefault     CompressionStrategy = "default"
	StrategyFiltered    CompressionStrategy = "filtered"
	StrategyHuffmanOnly CompressionStrategy = "huffmanOnly"
	StrategyRLE         CompressionStrategy = "rle"
	StrategyFixed       CompressionStrategy = "fixed"
)

// Options is the full set of tunables consumed by the blob tier engine, the
// CAS compression layer, the hash cache and the watch/subscription core.
type Options struct {
	// Tiered blob engine placement/migration.
	HotMaxSize    int64
	HotMaxAgeDays int
	WarmMaxAgeDays int
	AutoPromote   bool
	AutoDemote    bool

	// LRU eviction (hot page store -> cold bucket).
	MaxHotPages       int
	EvictionThreshold float64
	EvictionTarget    float64

	// Bucket payload compression (warm/cold writes). ColdCompression names
	// the codec ("none", "zstd", "brotli" or "gzip"); payloads smaller than
	// ColdCompressionMinSize are stored raw.
	ColdCompression        string
	ColdCompressionMinSize int64

	// Hash LRU cache.
	HashCacheMaxSize int
	HashCacheEnabled bool

	// Pattern compile cache.
	PatternCacheCapacity int

	// zlib compression.
	CompressionLevel    int
	CompressionStrategy CompressionStrategy
	CompressionMemLevel int

	// Watch/subscription core.
	MaxSubscriptionsPerConnection int // 0 == unbounded

	// Prepared statement cache.
	StatementCacheCapacity int
}

// Option mutates Options; the zero value of Options is never used directly,
// callers always start from Default().
type Option func(*Options)

// Default returns the stock option set.
func Default() Options {
	return Options{
		HotMaxSize:                    1 << 20, // 1 MiB
		HotMaxAgeDays:                 1,
		WarmMaxAgeDays:                30,
		AutoPromote:                   true,
		AutoDemote:                    true,
		MaxHotPages:                   256,
		EvictionThreshold:             0.9,
		EvictionTarget:                0.7,
		ColdCompression:               "zstd",
		ColdCompressionMinSize:        4096,
		HashCacheMaxSize:              1000,
		HashCacheEnabled:              true,
		PatternCacheCapacity:          500,
		CompressionLevel:              6,
		CompressionStrategy:           StrategyDefault,
		CompressionMemLevel:           8,
		MaxSubscriptionsPerConnection: 0,
		StatementCacheCapacity:        256,
	}
}

// New builds Options from Default() plus the given overrides, in order.
func New(opts ...Option) Options {
	o := Default()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithHotMaxSize(n int64) Option { return func(o *Options) { o.HotMaxSize = n } }

func WithMigrationAgeThresholds(hotMaxAgeDays, warmMaxAgeDays int) Option {
	return func(o *Options) {
		o.HotMaxAgeDays = hotMaxAgeDays
		o.WarmMaxAgeDays = warmMaxAgeDays
	}
}

func WithAutoTiering(promote, demote bool) Option {
	return func(o *Options) { o.AutoPromote = promote; o.AutoDemote = demote }
}

func WithEvictionThresholds(maxHotPages int, threshold, target float64) Option {
	return func(o *Options) {
		o.MaxHotPages = maxHotPages
		o.EvictionThreshold = threshold
		o.EvictionTarget = target
	}
}

func WithColdCompression(codec string, minSize int64) Option {
	return func(o *Options) {
		o.ColdCompression = codec
		o.ColdCompressionMinSize = minSize
	}
}

func WithHashCache(maxSize int, enabled bool) Option {
	return func(o *Options) { o.HashCacheMaxSize = maxSize; o.HashCacheEnabled = enabled }
}

func WithPatternCacheCapacity(n int) Option {
	return func(o *Options) { o.PatternCacheCapacity = n }
}

func WithCompression(level int, strategy CompressionStrategy, memLevel int) Option {
	return func(o *Options) {
		o.CompressionLevel = level
		o.CompressionStrategy = strategy
		o.CompressionMemLevel = memLevel
	}
}

func WithMaxSubscriptionsPerConnection(n int) Option {
	return func(o *Options) { o.MaxSubscriptionsPerConnection = n }
}

func WithStatementCacheCapacity(n int) Option {
	return func(o *Options) { o.StatementCacheCapacity = n }
}

// HotMaxAge returns HotMaxAgeDays as a time.Duration.
func (o Options) HotMaxAge() time.Duration {
	return time.Duration(o.HotMaxAgeDays) * 24 * time.Hour
}

// WarmMaxAge returns WarmMaxAgeDays as a time.Duration.
func (o Options) WarmMaxAge() time.Duration {
	return time.Duration(o.WarmMaxAgeDays) * 24 * time.Hour
}
