package finality

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// ConfirmationDepth number of blocks behind the tip after which a block is final
	ConfirmationDepth uint64
	EmitEvents        bool
	// MaxFinalizeBatch max number of blocks finalized by one UpdateFinality call
	MaxFinalizeBatch int
	// CheckPeriod how often the node advances finality to the selected tip
	CheckPeriod time.Duration
}

const (
	DefaultConfirmationDepth = 100
	DefaultMaxFinalizeBatch  = 1000
	DefaultCheckPeriod       = time.Second
)

func DefaultConfig() Config {
	return Config{
		ConfirmationDepth: DefaultConfirmationDepth,
		EmitEvents:        true,
		MaxFinalizeBatch:  DefaultMaxFinalizeBatch,
		CheckPeriod:       DefaultCheckPeriod,
	}
}

func ConfigFromViper() Config {
	ret := DefaultConfig()
	if viper.IsSet("finality.confirmation_depth") {
		ret.ConfirmationDepth = viper.GetUint64("finality.confirmation_depth")
	}
	if viper.IsSet("finality.emit_events") {
		ret.EmitEvents = viper.GetBool("finality.emit_events")
	}
	if viper.IsSet("finality.max_finalize_batch") {
		ret.MaxFinalizeBatch = viper.GetInt("finality.max_finalize_batch")
	}
	if viper.IsSet("finality.check_period") {
		ret.CheckPeriod = viper.GetDuration("finality.check_period")
	}
	if ret.MaxFinalizeBatch <= 0 {
		ret.MaxFinalizeBatch = DefaultMaxFinalizeBatch
	}
	if ret.CheckPeriod <= 0 {
		ret.CheckPeriod = DefaultCheckPeriod
	}
	return ret
}
