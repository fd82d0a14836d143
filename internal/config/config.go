package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	Secret     string `mapstructure:"secret"`
	AdminToken string `mapstructure:"admin_token"`
	LogLevel   string `mapstructure:"log_level"`

	// event stream
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	SlowConsumer string        `mapstructure:"slow_consumer"`

	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`

	// PresenceTTL of zero keeps presence until an explicit leave.
	PresenceTTL   time.Duration `mapstructure:"presence_ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	ICEServers   []ICEServer       `mapstructure:"ice_servers"`
	MeetingHosts map[string]string `mapstructure:"meeting_hosts"`

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	// empty, but registered so VOICE_SECRET and VOICE_ADMIN_TOKEN bind
	v.SetDefault("secret", "")
	v.SetDefault("admin_token", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("slow_consumer", "drop")
	v.SetDefault("rate_limit", 50)
	v.SetDefault("rate_interval", "1s")
	v.SetDefault("presence_ttl", "0s")
	v.SetDefault("sweep_interval", "15s")
	v.SetDefault("ice_servers", []map[string]any{
		{"urls": []string{"stun:stun.l.google.com:19302"}},
	})
}

// Load reads path, or config/config.<CONFIG_ENV>.yaml when path is empty.
// A missing file is not an error; defaults and VOICE_* env vars apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Dur("presence_ttl", cfg.PresenceTTL).Str("slow_consumer", cfg.SlowConsumer).Msg("config ready")
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.PongWait <= cfg.PingPeriod {
		return nil, fmt.Errorf("pong_wait (%s) must exceed ping_period (%s)", cfg.PongWait, cfg.PingPeriod)
	}
	if cfg.Mode == "release" && cfg.Secret == "" {
		return nil, fmt.Errorf("secret is required in release mode")
	}
	if cfg.SendBuffer <= 0 {
		return nil, fmt.Errorf("send_buffer must be positive, got %d", cfg.SendBuffer)
	}
	cfg.v = v
	return &cfg, nil
}

// OnReload watches the config file and hands every successfully parsed
// revision to fn. Only settings read at use time (log level) take effect.
func (c *Config) OnReload(fn func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	if _, err := os.Stat(c.v.ConfigFileUsed()); err != nil {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(c.v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload rejected")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		fn(next)
	})
	c.v.WatchConfig()
}
