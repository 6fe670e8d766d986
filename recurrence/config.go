package recurrence

import (
	"io"
	"log/slog"
	"time"
)

// Config controls decode caching and expansion limits of a Codec.
type Config struct {
	CacheEnabled bool
	CacheConfig  CacheConfig

	// MaxOccurrences caps how many occurrences Expand materializes. Zero
	// means no cap.
	MaxOccurrences int
}

// DefaultConfig caches decoded blobs and caps expansion at 1000 occurrences.
var DefaultConfig = Config{
	CacheEnabled:   true,
	CacheConfig:    DefaultCacheConfig,
	MaxOccurrences: 1000,
}

// HighPerformanceConfig keeps more blobs for longer and expands less.
var HighPerformanceConfig = Config{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             30 * time.Minute,
		MaxEntries:      5000,
		CleanupInterval: 10 * time.Minute,
	},
	MaxOccurrences: 500,
}

// LowMemoryConfig keeps few blobs cached.
var LowMemoryConfig = Config{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      100,
		CleanupInterval: 2 * time.Minute,
	},
	MaxOccurrences: 200,
}

// DisabledCacheConfig decodes every blob afresh.
var DisabledCacheConfig = Config{
	CacheEnabled:   false,
	MaxOccurrences: 1000,
}

// Codec decodes blobs into items, optionally through a DecodeCache, and
// applies the configured expansion cap.
type Codec struct {
	cache  *DecodeCache
	config Config
	logger *slog.Logger
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithCodecLogger sets the logger handed to every item the codec loads.
func WithCodecLogger(logger *slog.Logger) CodecOption {
	return func(c *Codec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCodec creates a codec with the given configuration.
func NewCodec(config Config, opts ...CodecOption) *Codec {
	c := &Codec{
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if config.CacheEnabled {
		c.cache = NewDecodeCache(config.CacheConfig)
	}
	return c
}

// Decode decodes data, through the cache when enabled.
func (c *Codec) Decode(data []byte) (*Blob, error) {
	var (
		b   *Blob
		err error
	)
	if c.cache != nil {
		b, err = c.cache.Decode(data)
	} else {
		b, err = Decode(data)
	}
	if err != nil {
		decodeResults.WithLabelValues("error").Inc()
		c.logger.Debug("decode recurrence blob", "size", len(data), "error", err)
		return nil, err
	}
	decodeResults.WithLabelValues("ok").Inc()
	return b, nil
}

// Load decodes raw into an item carrying the codec's logger.
func (c *Codec) Load(id string, props Properties, tz string, raw []byte, messages []*ExceptionMessage) (*Item, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	b, err := c.Decode(raw)
	if err != nil {
		return nil, err
	}
	return FromBlob(id, props, loc, b, raw, messages, WithLogger(c.logger)), nil
}

// Expand collects the occurrences of it within w, stopping at the
// configured cap.
func (c *Codec) Expand(it *Item, w Window) ([]Occurrence, error) {
	return it.CollectOccurrences(w, c.config.MaxOccurrences)
}

// Cache returns the decode cache, or nil when caching is disabled.
func (c *Codec) Cache() *DecodeCache {
	return c.cache
}

// Close releases the decode cache.
func (c *Codec) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}
