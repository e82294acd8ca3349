package config

import "time"

// Server defaults
const (
	DefaultAddr           = "localhost:8080"
	DefaultReloadInterval = 30 * time.Second
	ServerReadTimeout     = 10 * time.Second
	ServerWriteTimeout    = 10 * time.Second
	ShutdownTimeout       = 10 * time.Second
)

// Storage defaults
const (
	DefaultBackend     = "memory"
	DefaultMaxMemoryMB = 48
	BadgerGCInterval   = 10 * time.Minute
	StoreQueryTimeout  = 10 * time.Second
	StoreStatsTimeout  = 5 * time.Second
	PruneInterval      = time.Hour
)

// Graph limits
const (
	// GraphMaxSeconds bounds the span of a folded series, one row per second.
	GraphMaxSeconds = 7 * 24 * 60 * 60
	DefaultBrowser  = "firefox"
	DefaultOutput   = "tracedump"
)

// Export and import limits
const (
	ImportBatchSize  = 1000
	ImportMaxBuckets = 1_000_000
	ImportMaxBytes   = 256 << 20
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 16
	WSChannelBuffer   = 4
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
)
