package syncmgr

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// MaxQueueMemory budget for estimated size of queued blocks, bytes
	MaxQueueMemory int
	// ChunkSize input is processed in chunks of this size
	ChunkSize int
	// CheckpointInterval checkpoint is taken after this many processed blocks
	CheckpointInterval int
	// SeenLimit seen-set is trimmed to SeenTrimTo when it grows above SeenLimit
	SeenLimit  int
	SeenTrimTo int
	// MaxAncestryDepth depth cap of the ancestry estimate traversal
	MaxAncestryDepth int
	// MaxFutureDrift how far in the future block timestamp may be
	MaxFutureDrift time.Duration
	// Workers number of workers of the parallel coordinator
	Workers int
}

const (
	DefaultMaxQueueMemory     = 64 << 20
	DefaultChunkSize          = 100
	DefaultCheckpointInterval = 100
	DefaultSeenLimit          = 10_000
	DefaultSeenTrimTo         = 5_000
	DefaultMaxAncestryDepth   = 1000
	DefaultMaxFutureDrift     = 300 * time.Second
)

func DefaultConfig() Config {
	return Config{
		MaxQueueMemory:     DefaultMaxQueueMemory,
		ChunkSize:          DefaultChunkSize,
		CheckpointInterval: DefaultCheckpointInterval,
		SeenLimit:          DefaultSeenLimit,
		SeenTrimTo:         DefaultSeenTrimTo,
		MaxAncestryDepth:   DefaultMaxAncestryDepth,
		MaxFutureDrift:     DefaultMaxFutureDrift,
		Workers:            runtime.NumCPU(),
	}
}

func ConfigFromViper() Config {
	ret := DefaultConfig()
	if viper.IsSet("sync.max_queue_memory") {
		ret.MaxQueueMemory = int(viper.GetSizeInBytes("sync.max_queue_memory"))
	}
	if viper.IsSet("sync.chunk_size") {
		ret.ChunkSize = viper.GetInt("sync.chunk_size")
	}
	if viper.IsSet("sync.checkpoint_interval") {
		ret.CheckpointInterval = viper.GetInt("sync.checkpoint_interval")
	}
	if viper.IsSet("sync.seen_limit") {
		ret.SeenLimit = viper.GetInt("sync.seen_limit")
	}
	if viper.IsSet("sync.seen_trim_to") {
		ret.SeenTrimTo = viper.GetInt("sync.seen_trim_to")
	}
	if viper.IsSet("sync.max_ancestry_depth") {
		ret.MaxAncestryDepth = viper.GetInt("sync.max_ancestry_depth")
	}
	if viper.IsSet("sync.max_future_drift") {
		ret.MaxFutureDrift = viper.GetDuration("sync.max_future_drift")
	}
	if viper.IsSet("sync.workers") {
		ret.Workers = viper.GetInt("sync.workers")
	}
	return ret.fixed()
}

// fixed replaces nonsensical values with defaults
func (c Config) fixed() Config {
	def := DefaultConfig()
	if c.MaxQueueMemory <= 0 {
		c.MaxQueueMemory = def.MaxQueueMemory
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = def.CheckpointInterval
	}
	if c.SeenLimit <= 0 {
		c.SeenLimit = def.SeenLimit
	}
	if c.SeenTrimTo <= 0 || c.SeenTrimTo > c.SeenLimit {
		c.SeenTrimTo = c.SeenLimit / 2
	}
	if c.MaxAncestryDepth <= 0 {
		c.MaxAncestryDepth = def.MaxAncestryDepth
	}
	if c.MaxFutureDrift <= 0 {
		c.MaxFutureDrift = def.MaxFutureDrift
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c
}
