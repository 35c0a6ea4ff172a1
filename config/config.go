// Package config holds the platform's runtime knobs (spec §6) and the
// ambient logging/config-loading stack. Grounded on the teacher's
// src/config.Config (DataDir/LogLevel/CacheSize/SyncLimit defaults,
// Logger() returning a prefixed *logrus.Entry) and cmd/dummy's lfshook
// file-logging setup, wired through spf13/viper for file+env+flag layering
// and spf13/cobra for the CLI (see cmd/swirlnode).
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default configuration values, named the way the teacher names its own
// Default* constants.
const (
	DefaultLogLevel               = "info"
	DefaultDataDir                = "swirlnode-data"
	DefaultBadgerDir               = "pces_index"
	DefaultSegmentDir              = "segments"
	DefaultCacheSize              = 10000
	DefaultHasherCapacity         = 64
	DefaultValidatorCapacity      = 256
	DefaultLinkerCapacity         = 256
	DefaultConsensusCapacity      = 256
	DefaultMaxGenerationSpan      = uint64(5000)
	DefaultMaxBirthRoundSpan      = uint64(5000)
	DefaultEventCreationRate      = 10.0 // events/sec
	DefaultEventCreationBurst     = 10
	DefaultMaxClockDriftFuture    = int64(5 * time.Second)
	DefaultCoinRoundFrequency     = 10
	DefaultStatsAddr              = "127.0.0.1:9280"
	DefaultMaxTransactionBytes    = 1 << 20 // 1 MiB
	DefaultBirthRoundTolerance    = uint64(10)
)

// Config is the fully resolved set of runtime knobs for one swirlnode
// process.
type Config struct {
	DataDir  string `mapstructure:"datadir"`
	LogLevel string `mapstructure:"log-level"`
	LogDir   string `mapstructure:"log-dir"`

	StatsAddr string `mapstructure:"stats-listen"`

	CacheSize         int     `mapstructure:"cache-size"`
	HasherCapacity    int     `mapstructure:"hasher-capacity"`
	ValidatorCapacity int     `mapstructure:"validator-capacity"`
	LinkerCapacity    int     `mapstructure:"linker-capacity"`
	ConsensusCapacity int     `mapstructure:"consensus-capacity"`

	MaxGenerationSpan uint64 `mapstructure:"max-generation-span"`
	MaxBirthRoundSpan uint64 `mapstructure:"max-birth-round-span"`

	EventCreationRate  float64 `mapstructure:"event-creation-rate"`
	EventCreationBurst int     `mapstructure:"event-creation-burst"`

	MaxClockDriftFuture time.Duration `mapstructure:"max-clock-drift-future"`
	CoinRoundFrequency  int           `mapstructure:"coin-round-frequency"`

	MaxTransactionBytes int64  `mapstructure:"max-transaction-bytes"`
	BirthRoundTolerance uint64 `mapstructure:"birth-round-tolerance"`

	AncientModeBirthRound bool `mapstructure:"ancient-mode-birth-round"`

	logger *logrus.Logger
}

func NewDefaultConfig() *Config {
	return &Config{
		DataDir:             DefaultDataDir,
		LogLevel:            DefaultLogLevel,
		StatsAddr:           DefaultStatsAddr,
		CacheSize:           DefaultCacheSize,
		HasherCapacity:      DefaultHasherCapacity,
		ValidatorCapacity:   DefaultValidatorCapacity,
		LinkerCapacity:      DefaultLinkerCapacity,
		ConsensusCapacity:   DefaultConsensusCapacity,
		MaxGenerationSpan:   DefaultMaxGenerationSpan,
		MaxBirthRoundSpan:   DefaultMaxBirthRoundSpan,
		EventCreationRate:   DefaultEventCreationRate,
		EventCreationBurst:  DefaultEventCreationBurst,
		MaxClockDriftFuture: time.Duration(DefaultMaxClockDriftFuture),
		CoinRoundFrequency:  DefaultCoinRoundFrequency,
		MaxTransactionBytes: DefaultMaxTransactionBytes,
		BirthRoundTolerance: DefaultBirthRoundTolerance,
	}
}

func (c *Config) BadgerDir() string   { return filepath.Join(c.DataDir, DefaultBadgerDir) }
func (c *Config) SegmentDir() string  { return filepath.Join(c.DataDir, DefaultSegmentDir) }
func (c *Config) StateFilePath() string { return filepath.Join(c.DataDir, "state.json") }
func (c *Config) AddressBookPath() string { return filepath.Join(c.DataDir, "addressbook.json") }

// Logger returns a formatted logrus Entry, prefixed "swirlnode", with file
// hooks installed per-level if LogDir is set — mirrors the teacher's
// Config.Logger()/cmd/dummy's lfshook wiring.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = logLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogDir != "" {
			if err := os.MkdirAll(c.LogDir, 0755); err == nil {
				pathMap := lfshook.PathMap{
					logrus.InfoLevel:  filepath.Join(c.LogDir, "swirlnode_info.log"),
					logrus.WarnLevel:  filepath.Join(c.LogDir, "swirlnode_warn.log"),
					logrus.ErrorLevel: filepath.Join(c.LogDir, "swirlnode_error.log"),
					logrus.DebugLevel: filepath.Join(c.LogDir, "swirlnode_debug.log"),
				}
				c.logger.Hooks.Add(lfshook.NewHook(pathMap, new(prefixed.TextFormatter)))
			}
		}
	}
	return c.logger.WithField("prefix", "swirlnode")
}

func logLevel(l string) logrus.Level {
	level, err := logrus.ParseLevel(l)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
