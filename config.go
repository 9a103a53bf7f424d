package eventpipe

import (
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config is the file-loadable configuration for a duplex transport.
type Config struct {
	// Primary is the pipe name bound in the listening role.
	Primary string `yaml:"primary"`
	// Secondary is the pipe name dialed in the connecting role. The
	// peer process uses the same two names in the opposite order.
	Secondary      string        `yaml:"secondary"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	Logging        LoggingConfig `yaml:"logging"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a configuration with default timeout and
// logging settings. Pipe names have no default.
func DefaultConfig() *Config {
	return &Config{
		ConnectTimeout: DefaultConnectTimeout,
		Logging:        LoggingConfig{Level: "warn"},
	}
}

// LoadConfig reads and parses a configuration file using the real
// filesystem.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigWithFs(path, afero.NewOsFs())
}

// LoadConfigWithFs reads and parses a configuration file using the
// provided filesystem. Fields absent from the file keep their defaults.
func LoadConfigWithFs(path string, afs afero.Fs) (*Config, error) {
	data, err := afero.ReadFile(afs, path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// NewFromConfig creates a duplex transport from a loaded configuration
// and applies its logging level to the process-wide slog default.
func NewFromConfig(cfg *Config) (*EventPipe, error) {
	ep, err := New(cfg.Primary, cfg.Secondary)
	if err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout > 0 {
		ep.SetConnectTimeout(cfg.ConnectTimeout)
	}
	if cfg.Logging.Level != "" {
		SetupLogging(cfg.Logging.Level)
	}
	return ep, nil
}
