package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config represents the motionrec configuration
type Config struct {
	Records  Records  `mapstructure:"records"`
	Recorder Recorder `mapstructure:"recorder"`
	Session  Session  `mapstructure:"session"`
	Journal  Journal  `mapstructure:"journal"`
	Motion   Motion   `mapstructure:"motion"`
	Log      Log      `mapstructure:"log"`
	PIDFile  string   `mapstructure:"pid_file"`
}

// Records describes the recording store
type Records struct {
	Dir       string `mapstructure:"dir"`
	Extension string `mapstructure:"extension"`
	MinFreeMB uint64 `mapstructure:"min_free_mb"`
}

// Recorder describes the external capture program. The output filename is
// appended to Args on every launch.
type Recorder struct {
	Path string   `mapstructure:"path"`
	Args []string `mapstructure:"args"`
}

// Session contains debounce settings
type Session struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// Journal is where finished sessions are recorded
type Journal struct {
	Dir string `mapstructure:"dir"`
}

// Motion lists the motion sources to register
type Motion struct {
	Signal bool     `mapstructure:"signal"`
	Lines  []string `mapstructure:"lines"`
}

// Log configures the logrus loggers
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads the configuration from path, or from ~/.motionrec/config.yaml
// when path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
	} else {
		configDir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir)
	}

	v.SetEnvPrefix("MOTIONREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Try to read config file, but don't fail if the default one doesn't exist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults mirrors the stock Raspberry Pi camera setup
func setDefaults(v *viper.Viper) {
	v.SetDefault("records.dir", "/root/records")
	v.SetDefault("records.extension", "h264")
	v.SetDefault("records.min_free_mb", 500)

	v.SetDefault("recorder.path", "/bin/raspivid")
	v.SetDefault("recorder.args", []string{"raspivid", "-t", "0", "-n", "-fps", "24", "-o"})

	v.SetDefault("session.grace_period", "8s")

	v.SetDefault("journal.dir", "~/.motionrec/sessions")
	v.SetDefault("pid_file", "~/.motionrec/motionrec.pid")

	v.SetDefault("motion.signal", true)
	v.SetDefault("motion.lines", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate rejects settings the daemon cannot run with
func (c *Config) Validate() error {
	if c.Records.Dir == "" {
		return fmt.Errorf("records.dir must not be empty")
	}
	if c.Records.Extension == "" {
		return fmt.Errorf("records.extension must not be empty")
	}
	if c.Recorder.Path == "" {
		return fmt.Errorf("recorder.path must not be empty")
	}
	if c.Session.GracePeriod < 0 {
		return fmt.Errorf("session.grace_period must not be negative, got %s", c.Session.GracePeriod)
	}
	if !c.Motion.Signal && len(c.Motion.Lines) == 0 {
		return fmt.Errorf("no motion source configured: enable motion.signal or list motion.lines")
	}
	return nil
}

// RecorderArgv returns the full argv for a recording targeting outFile
func (c *Config) RecorderArgv(outFile string) []string {
	argv := make([]string, 0, len(c.Recorder.Args)+1)
	argv = append(argv, c.Recorder.Args...)
	if len(argv) == 0 {
		argv = append(argv, filepath.Base(c.Recorder.Path))
	}
	return append(argv, outFile)
}

// expand resolves ~ in every path setting
func (c *Config) expand() error {
	var err error
	for _, p := range []*string{&c.Records.Dir, &c.Recorder.Path, &c.Journal.Dir, &c.PIDFile} {
		if *p, err = homedir.Expand(*p); err != nil {
			return err
		}
	}
	c.Motion.Lines = expandPaths(c.Motion.Lines)
	return nil
}

// expandPaths expands ~ in paths to home directory
func expandPaths(paths []string) []string {
	expanded := make([]string, len(paths))
	for i, path := range paths {
		expandedPath, err := homedir.Expand(path)
		if err != nil {
			// If expansion fails, use original path
			expanded[i] = path
			continue
		}
		expanded[i] = expandedPath
	}
	return expanded
}

// ConfigDir returns the motionrec configuration directory path
func ConfigDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".motionrec"), nil
}
