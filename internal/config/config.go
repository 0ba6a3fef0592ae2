package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/upsguard/internal/action"
	"codeberg.org/mutker/upsguard/internal/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix  = "UPSGUARD"
	DefaultSensorPort = 11122
	DefaultInterval   = 60
	DefaultTimeout    = 30
	DefaultThreshold  = 20
	DefaultSSHPort    = 22
	DefaultSSHIdle    = 3
	DefaultLogLevel   = "info"
	DefaultJournalDB  = "/var/lib/upsguard/journal.db"

	configName = "upsguard.conf"
	configDir  = "/etc"
	maxPort    = 65535
	maxPercent = 100
)

// Config is immutable once loaded.
type Config struct {
	SensorHost    string `mapstructure:"sensor_host"`
	SensorPort    int    `mapstructure:"sensor_port"`
	Interval      int    `mapstructure:"interval"`
	Timeout       int    `mapstructure:"timeout"`
	Threshold     int    `mapstructure:"threshold"`
	Action        string `mapstructure:"action"`
	Command       string `mapstructure:"command"`
	Shell         string `mapstructure:"shell"`
	SSHHost       string `mapstructure:"ssh_host"`
	SSHPort       int    `mapstructure:"ssh_port"`
	SSHUser       string `mapstructure:"ssh_user"`
	SSHPassword   string `mapstructure:"ssh_password"`
	SSHKnownHosts string `mapstructure:"ssh_known_hosts"`
	SSHIdle       int    `mapstructure:"ssh_idle"`
	LogLevel      string `mapstructure:"log_level"`
	Journal       bool   `mapstructure:"journal"`
	JournalDB     string `mapstructure:"journal_db"`
	PIDFile       string `mapstructure:"pid_file"`
}

// IntervalDuration returns the poll interval
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// TimeoutDuration returns the network and action timeout
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// SSHIdleDuration returns how long the remote shell may stay silent
func (c *Config) SSHIdleDuration() time.Duration {
	return time.Duration(c.SSHIdle) * time.Second
}

// Load reads configuration from flags (os.Args), environment, .env and
// the configuration file.
func Load(opts ...Option) (*Config, error) {
	return LoadArgs(os.Args[1:], opts...)
}

// LoadArgs is Load with explicit command line arguments.
// Precedence: flags, environment, configuration file, defaults.
func LoadArgs(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix:  DefaultEnvPrefix,
		dotEnvPath: ".env",
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	if o.dotEnvPath != "" {
		// A missing .env file is not an error
		_ = godotenv.Load(o.dotEnvPath)
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	configPath := o.configPath
	if configPath == "" {
		configPath, _ = fs.GetString("config")
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if cfg.SSHHost == "" {
		cfg.SSHHost = cfg.SensorHost
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("upsguard", pflag.ContinueOnError)

	fs.String("config", "", "Path to the configuration file")
	fs.String("sensor-host", "", "Host running the sensor monitor")
	fs.Int("sensor-port", DefaultSensorPort, "Sensor monitor port")
	fs.Int("interval", DefaultInterval, "Seconds between polls")
	fs.Int("timeout", DefaultTimeout, "Seconds before a request or action times out")
	fs.Int("threshold", DefaultThreshold, "Shut down below this charge level (percent)")
	fs.String("action", string(action.StrategyLogOnly), "Shutdown strategy: log-only, local-command or remote-shell")
	fs.String("command", "", "Shutdown command (strategy default when empty)")
	fs.String("shell", "", "Shell used by local-command")
	fs.String("ssh-host", "", "Remote shell host (defaults to sensor-host)")
	fs.Int("ssh-port", DefaultSSHPort, "Remote shell port")
	fs.String("ssh-user", "", "Remote shell user")
	fs.String("ssh-password", "", "Remote shell password")
	fs.String("ssh-known-hosts", "", "known_hosts file used to verify the remote host key")
	fs.Int("ssh-idle", DefaultSSHIdle, "Seconds of silence before the remote shell is closed")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning (warn) or error")
	fs.Bool("journal", false, "Record cycle outcomes in a sqlite journal")
	fs.String("journal-db", DefaultJournalDB, "Journal database path")
	fs.String("pid-file", filepath.Join(os.TempDir(), "upsguard.pid"), "PID file path")

	return fs
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path != "" {
		v.SetConfigFile(path)
		if ext := filepath.Ext(path); ext == "" || ext == ".conf" {
			v.SetConfigType("toml")
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	return nil
}

// Validate checks every setting; the first problem found is returned.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.SensorHost == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "sensor_host")
	}
	if c.SensorPort <= 0 || c.SensorPort > maxPort {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{"sensor_port", c.SensorPort})
	}
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	// A stalled request must never delay the next cycle
	if c.Timeout <= 0 || c.Timeout >= c.Interval {
		return errFactory.WithData(errors.ErrInvalidTimeout, struct {
			Timeout  int
			Interval int
		}{c.Timeout, c.Interval})
	}
	if c.Threshold < 1 || c.Threshold > maxPercent {
		return errFactory.WithData(errors.ErrInvalidThreshold, c.Threshold)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	strategy, err := action.ParseStrategy(c.Action)
	if err != nil {
		return err
	}

	if strategy == action.StrategyRemoteShell {
		if c.SSHUser == "" {
			return errFactory.WithData(errors.ErrMissingConfig, "ssh_user")
		}
		if c.SSHPassword == "" {
			return errFactory.WithData(errors.ErrMissingConfig, "ssh_password")
		}
		if c.SSHPort <= 0 || c.SSHPort > maxPort {
			return errFactory.WithData(errors.ErrInvalidConfig, struct {
				Field string
				Value int
			}{"ssh_port", c.SSHPort})
		}
	}

	if c.Journal && c.JournalDB == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "journal_db")
	}

	return nil
}
