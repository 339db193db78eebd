package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/obay/internal/paths"
	"github.com/mesh-intelligence/obay/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "OBAY"
)

// Config keys.
const (
	cfgKeyListen       = "listen"
	cfgKeyBackend      = "backend"
	cfgKeyDataDir      = "data_dir"
	cfgKeyPostgresDSN  = "postgres_dsn"
	cfgKeyLogLevel     = "log_level"
	cfgKeyLogFormat    = "log_format"
	cfgKeyFeedBacklog  = "feed_backlog"
	cfgKeyReadyTimeout = "ready_timeout"
	cfgKeyPingInterval = "ping_interval"
)

// Defaults.
const (
	defaultListen       = ":8080"
	defaultBackend      = types.BackendSQLite
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	defaultPingInterval = 25 * time.Second
)

// settings is the merged result of defaults, config.yaml, OBAY_* environment
// variables and flags, in increasing precedence.
type settings struct {
	Listen       string        `mapstructure:"listen"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	PingInterval time.Duration `mapstructure:"ping_interval"`

	types.Config `mapstructure:",squash"`
}

// flagKeys maps config keys to the flags that override them.
var flagKeys = map[string]string{
	cfgKeyBackend:   "backend",
	cfgKeyLogLevel:  "log-level",
	cfgKeyLogFormat: "log-format",
	cfgKeyListen:    "listen",
}

// newViper returns a viper instance with defaults and OBAY_* environment
// binding, reading config.yaml from configDir when present.
func newViper(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyListen, defaultListen)
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetDefault(cfgKeyDataDir, "")
	v.SetDefault(cfgKeyPostgresDSN, "")
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyLogFormat, defaultLogFormat)
	v.SetDefault(cfgKeyFeedBacklog, types.DefaultFeedBacklog)
	v.SetDefault(cfgKeyReadyTimeout, types.DefaultReadyTimeout)
	v.SetDefault(cfgKeyPingInterval, defaultPingInterval)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// load resolves directories and settings for cmd and builds the logger.
func (e *environment) load(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(e.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := newViper(configDir)
	if err != nil {
		return err
	}
	for key, name := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	s.DataDir, err = paths.ResolveDataDir(e.flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	if err := s.Config.Validate(); err != nil {
		return usageError{fmt.Errorf("invalid config: %w", err)}
	}

	logger, err := newLogger(cmd.ErrOrStderr(), s.LogLevel, s.LogFormat)
	if err != nil {
		return usageError{err}
	}

	e.configDir = configDir
	e.settings = s
	e.logger = logger
	return nil
}
