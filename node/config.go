package node

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lunfardo314/dagcore/core/finality"
	"github.com/lunfardo314/dagcore/core/ordering"
	"github.com/lunfardo314/dagcore/core/syncmgr"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/metrics"
	"github.com/lunfardo314/dagcore/util"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	// DBDir directory of the badger database. Empty means in-memory store
	DBDir      string
	DBGCPeriod time.Duration
	// Genesis expected genesis. Nil means the block at height 0 in the store
	Genesis       ledger.Hash
	Ordering      ordering.Config
	Finality      finality.Config
	Sync          syncmgr.Config
	MetricsEnable bool
	MetricsPort   int
	// MemStatsPeriod 0 disables periodic memory logging
	MemStatsPeriod time.Duration
}

const (
	DefaultDBGCPeriod     = 5 * time.Minute
	DefaultMemStatsPeriod = 30 * time.Second
)

const (
	bootstrapLoggerName = "[boot]"
	nodeLoggerName      = "[node]"
)

// DefaultConfig in-memory node with default component configuration
func DefaultConfig() Config {
	return Config{
		DBGCPeriod:     DefaultDBGCPeriod,
		Ordering:       ordering.DefaultConfig(),
		Finality:       finality.DefaultConfig(),
		Sync:           syncmgr.DefaultConfig(),
		MetricsPort:    metrics.DefaultPort,
		MemStatsPeriod: DefaultMemStatsPeriod,
	}
}

// RegisterFlags defines command line flags which override the config file
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("logger.level", "info", "log level")
	fs.String("logger.timelayout", global.TimeLayoutDefault, "time format")
	fs.String("logger.output", "stdout", "a list where to write log")
	fs.String("db.dir", global.DefaultDBDir, "directory of the DAG database. Empty means in-memory")
	fs.String("genesis.hash", "", "hex encoded hash of the genesis block")
	fs.Uint64("finality.confirmation_depth", finality.DefaultConfirmationDepth, "confirmation depth of finality")
	fs.Int("sync.workers", syncmgr.DefaultConfig().Workers, "number of parallel sync workers")
	fs.Bool("metrics.enable", false, "expose Prometheus metrics")
	fs.Int("metrics.port", metrics.DefaultPort, "port of Prometheus metrics")
}

// InitConfig binds flags and reads the config file from the working directory, if present
func InitConfig(fs *pflag.FlagSet, log *zap.SugaredLogger) error {
	if fs != nil {
		if err := viper.BindPFlags(fs); err != nil {
			return err
		}
	}
	viper.SetEnvPrefix("DAGNODE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(global.ConfigFileName)
	viper.SetConfigType(global.DefaultConfigType)
	viper.AddConfigPath(".")
	err := viper.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case err == nil:
		log.Infof("config file: %s", viper.ConfigFileUsed())
	case errors.As(err, &notFound):
		log.Warnf("config file '%s.%s' not found. Using defaults and flags", global.ConfigFileName, global.DefaultConfigType)
	default:
		return err
	}
	return nil
}

// ConfigFromViper reads node config. Components read their sections themselves
func ConfigFromViper() (Config, error) {
	ret := DefaultConfig()
	ret.DBDir = global.DefaultDBDir
	if viper.IsSet("db.dir") {
		ret.DBDir = viper.GetString("db.dir")
	}
	if viper.IsSet("db.gc_period") {
		ret.DBGCPeriod = viper.GetDuration("db.gc_period")
	}
	if s := viper.GetString("genesis.hash"); s != "" {
		h, err := ledger.HashFromHexString(s)
		if err != nil {
			return Config{}, fmt.Errorf("wrong genesis.hash: %w", err)
		}
		ret.Genesis = h
	}
	ret.Ordering = ordering.ConfigFromViper()
	ret.Finality = finality.ConfigFromViper()
	ret.Sync = syncmgr.ConfigFromViper()
	ret.MetricsEnable = viper.GetBool("metrics.enable")
	if viper.IsSet("metrics.port") {
		ret.MetricsPort = viper.GetInt("metrics.port")
	}
	if viper.IsSet("memstats_period") {
		ret.MemStatsPeriod = viper.GetDuration("memstats_period")
	}
	return ret, nil
}

func NewBootstrapLogger() *zap.SugaredLogger {
	return global.NewLogger(bootstrapLoggerName, zap.InfoLevel, []string{"stderr"}, "")
}

// NewEnvironmentFromViper global environment with the logger and trace tags from config
func NewEnvironmentFromViper() *global.Global {
	outputs := strings.Split(viper.GetString("logger.output"), ",")
	if util.Find(outputs, "stdout") < 0 {
		outputs = append(outputs, "stdout")
	}
	log := global.NewLogger(nodeLoggerName, global.ParseLevel(viper.GetString("logger.level")), outputs, viper.GetString("logger.timelayout"))
	ret := global.NewWithLogger(log)
	ret.EnableTraceTags(viper.GetStringSlice("logger.trace_tags")...)
	return ret
}
