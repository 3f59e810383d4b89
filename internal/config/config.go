package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/mucd/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	MUC     MUCConfig     `mapstructure:"muc"`
	Store   StoreConfig   `mapstructure:"store"`
	Search  SearchConfig  `mapstructure:"search"`
	Rate    RateConfig    `mapstructure:"rate"`
	Cluster ClusterConfig `mapstructure:"cluster"`
}

type MUCConfig struct {
	Domain              string            `mapstructure:"domain"`
	Sysadmins           []string          `mapstructure:"sysadmins"`
	SkipInvite          bool              `mapstructure:"skip_invite"`
	DiscoverLocked      bool              `mapstructure:"discover_locked"`
	RegistrationEnabled bool              `mapstructure:"registration_enabled"`
	RoomDefaults        domain.RoomConfig `mapstructure:"room_defaults"`
}

type StoreConfig struct {
	// Path of the badger directory; empty keeps affiliations in memory.
	Path string `mapstructure:"path"`
}

type SearchConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type RateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

type ClusterConfig struct {
	NodeID  string   `mapstructure:"node_id"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Group   string   `mapstructure:"group"`
}

// Enabled reports whether cluster notifications are exchanged at all.
func (c ClusterConfig) Enabled() bool { return len(c.Brokers) > 0 && c.Topic != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("log_level", "info")

	v.SetDefault("muc.domain", "conference.localhost")
	v.SetDefault("muc.sysadmins", []string{})
	v.SetDefault("muc.skip_invite", false)
	v.SetDefault("muc.discover_locked", false)
	v.SetDefault("muc.registration_enabled", true)
	v.SetDefault("muc.room_defaults.public", true)
	v.SetDefault("muc.room_defaults.max_users", 30)
	v.SetDefault("muc.room_defaults.registration_enabled", true)
	v.SetDefault("muc.room_defaults.members_only", false)
	v.SetDefault("muc.room_defaults.moderated", false)
	v.SetDefault("muc.room_defaults.non_anonymous", false)
	v.SetDefault("muc.room_defaults.persistent", false)
	v.SetDefault("muc.room_defaults.can_occupants_invite", false)

	v.SetDefault("store.path", "")
	v.SetDefault("search.cache_size", 256)
	v.SetDefault("search.cache_ttl", "30s")
	v.SetDefault("rate.limit", 20)
	v.SetDefault("rate.interval", "1s")

	v.SetDefault("cluster.node_id", "")
	v.SetDefault("cluster.brokers", []string{})
	v.SetDefault("cluster.topic", "")
	v.SetDefault("cluster.group", "mucd")
}

// Load reads config/config.<CONFIG_ENV>.yaml on top of the defaults.
// MUCD_* environment variables override both, e.g. MUCD_MUC_DOMAIN.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("MUCD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Cluster.NodeID == "" {
		cfg.Cluster.NodeID, _ = os.Hostname()
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("domain", cfg.MUC.Domain).
		Bool("cluster", cfg.Cluster.Enabled()).
		Msg("config ready")
	return &cfg, nil
}
