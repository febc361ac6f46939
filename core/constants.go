package core

const (
	OneKilobyte = 1024
	OneMegabyte = 1024 * OneKilobyte // 1024 (1KB) * 1024 => 1MB

	// DefaultMaxDatafileSize is what cmd/caskdb rotates at when the config
	// leaves it unset. The library itself never rotates unless asked. The
	// config accepts 0 (no rotation) or a size within the MB bounds.
	DefaultMaxDatafileSizeMB = 64
	MinimumDatafileSizeMB    = 1
	MaximumDatafileSizeMB    = 4096

	DefaultMaxDatafileSize = DefaultMaxDatafileSizeMB * OneMegabyte

	// DefaultValueCacheEntries is the cache size cmd/caskdb uses by default.
	DefaultValueCacheEntries = 1024
)
