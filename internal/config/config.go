package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tanq16/speedo/internal/utils"
)

const (
	EnvPrefix         = "SPEEDO"
	DefaultConfigDir  = ".config/speedo"
	DefaultConfigFile = "config.yaml"
)

// Config is the merged view of flags, SPEEDO_* environment variables and
// the optional YAML config file, in that order of precedence.
type Config struct {
	Debug   bool   `mapstructure:"debug"`
	LogFile string `mapstructure:"log-file"`

	// HTTP client
	Timeout       time.Duration `mapstructure:"timeout"`
	KATimeout     time.Duration `mapstructure:"keep-alive-timeout"`
	UserAgent     string        `mapstructure:"user-agent"`
	ProxyURL      string        `mapstructure:"proxy"`
	ProxyUsername string        `mapstructure:"proxy-username"`
	ProxyPassword string        `mapstructure:"proxy-password"`
	Headers       []string      `mapstructure:"header"`

	// run
	Connections    int           `mapstructure:"connections"`
	Cap            string        `mapstructure:"cap"`
	Duration       time.Duration `mapstructure:"duration"`
	Interval       time.Duration `mapstructure:"interval"`
	RetryDelay     time.Duration `mapstructure:"retry-delay"`
	Plain          bool          `mapstructure:"plain"`
	TargetsFile    string        `mapstructure:"targets-file"`
	ReadBufferSize string        `mapstructure:"read-buffer"`

	// serve
	Listen       string        `mapstructure:"listen"`
	Path         string        `mapstructure:"path"`
	ChunkSize    string        `mapstructure:"chunk-size"`
	WriteLimit   string        `mapstructure:"write-limit"`
	ReadLimit    string        `mapstructure:"read-limit"`
	StallTimeout time.Duration `mapstructure:"stall-timeout"`
}

// Load builds a Config. flags may be nil; when given, every flag is bound so
// explicitly set flags win over the environment and the file. A missing
// default config file is not an error, a missing explicit one is.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	explicit := configFile != ""
	if !explicit {
		configFile = defaultConfigPath()
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("keep-alive-timeout", 90*time.Second)
	v.SetDefault("user-agent", utils.ToolUserAgent)
	v.SetDefault("connections", utils.DefaultConcurrency)
	v.SetDefault("cap", "0")
	v.SetDefault("interval", 200*time.Millisecond)
	v.SetDefault("retry-delay", 200*time.Millisecond)
	v.SetDefault("read-buffer", "64KiB")
	v.SetDefault("listen", ":8080")
	v.SetDefault("path", "/speed/down")
	v.SetDefault("chunk-size", "64KiB")
	v.SetDefault("write-limit", "0")
	v.SetDefault("read-limit", "0")
	v.SetDefault("stall-timeout", 30*time.Second)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, DefaultConfigDir, DefaultConfigFile)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// HTTPClientConfig resolves the client settings, including proxy
// credentials embedded in the proxy URL and a randomized user agent.
func (c *Config) HTTPClientConfig() utils.HTTPClientConfig {
	userAgent := c.UserAgent
	if userAgent == "randomize" {
		userAgent = utils.GetRandomUserAgent()
	}
	proxyURL, proxyUsername, proxyPassword := splitProxyAuth(c.ProxyURL, c.ProxyUsername, c.ProxyPassword)
	return utils.HTTPClientConfig{
		Timeout:        c.Timeout,
		KATimeout:      c.KATimeout,
		ProxyURL:       proxyURL,
		ProxyUsername:  proxyUsername,
		ProxyPassword:  proxyPassword,
		UserAgent:      userAgent,
		Headers:        utils.ParseHeaderArgs(c.Headers),
		HighThreadMode: c.Connections > utils.HighThreadThreshold,
	}
}
