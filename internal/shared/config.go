package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Transfer TransferConfig `toml:"transfer"`
	Quark    QuarkConfig    `toml:"quark"`
	Baidu    BaiduConfig    `toml:"baidu"`
	Session  SessionConfig  `toml:"session"`
	Database DatabaseConfig `toml:"database"`
	Bridge   BridgeConfig   `toml:"bridge"`
	HTTP     HTTPConfig     `toml:"http"`
}

// TransferConfig controls the transfer pipeline: keyword filtering, retry
// budget, and provider-task polling.
type TransferConfig struct {
	BannedKeywords []string `toml:"banned_keywords"`
	MaxRetries     int      `toml:"max_retries" validate:"min=0"`
	RetryDelayMS   int      `toml:"retry_delay_ms" validate:"min=0"`
	PollIntervalMS int      `toml:"poll_interval_ms" validate:"min=0"`
	MaxPollRetries int      `toml:"max_poll_retries" validate:"min=1"`
}

// RetryDelay returns the configured delay between retry attempts.
func (t TransferConfig) RetryDelay() time.Duration {
	return time.Duration(t.RetryDelayMS) * time.Millisecond
}

// PollInterval returns the configured delay between provider task polls.
func (t TransferConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMS) * time.Millisecond
}

// QuarkConfig contains Quark Drive (source provider) settings.
type QuarkConfig struct {
	DefaultFolder string `toml:"default_folder"`
	Cookie        string `toml:"cookie"`
	CurlFile      string `toml:"curl_file"`
}

// BaiduConfig contains Baidu Netdisk (destination provider) settings.
type BaiduConfig struct {
	DefaultFolder string `toml:"default_folder"`
	Cookie        string `toml:"cookie"`
	CurlFile      string `toml:"curl_file"`
}

// SessionConfig controls session acquisition behavior.
type SessionConfig struct {
	AutoGetCookie bool `toml:"auto_get_cookie"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// BridgeConfig contains message bridge listen settings.
type BridgeConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

// Addr returns the bridge listen address in host:port form.
func (b BridgeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// HTTPConfig contains outbound HTTP client settings.
type HTTPConfig struct {
	TimeoutMS int `toml:"timeout_ms" validate:"min=1"`
}

// Timeout returns the per-call network deadline for drive client requests.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMS) * time.Millisecond
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks field constraints declared via validator tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SaveConfig writes the configuration to a TOML file at the specified path.
func SaveConfig(path string, config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
