package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Security  SecurityConfig  `mapstructure:"security"`
	Poke      PokeConfig      `mapstructure:"poke"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port     int      `mapstructure:"port"`
	Debug    bool     `mapstructure:"debug"`
	AdminKey string   `mapstructure:"admin_key"`
	AdminIPs []string `mapstructure:"admin_ips"` // empty = any IP holding the admin key
}

type DatabaseConfig struct {
	Mode        string        `mapstructure:"mode"` // sqlite | mysql | postgres
	SQLitePath  string        `mapstructure:"sqlite_path"`
	MySQLDSN    string        `mapstructure:"mysql_dsn"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLife     time.Duration `mapstructure:"max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	RedisPrefix     string        `mapstructure:"redis_prefix"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the CORS/SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PokeConfig holds the Contact Gate thresholds and content filters.
type PokeConfig struct {
	MaxPerDay    int      `mapstructure:"max_per_day"`
	CooldownDays int      `mapstructure:"cooldown_days"`
	MaxLength    int      `mapstructure:"max_length"`
	FilterURLs   bool     `mapstructure:"filter_urls"`
	FilterEmails bool     `mapstructure:"filter_emails"`
	Profanity    []string `mapstructure:"profanity"`
	// ProfanityFile is an optional YAML file of the form `words: [...]`
	// merged into Profanity at load time.
	ProfanityFile string `mapstructure:"profanity_file"`
}

// Cooldown returns the per-pair cooldown window.
func (p PokeConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownDays) * 24 * time.Hour
}

type MessagingConfig struct {
	MaxLength int `mapstructure:"max_length"`
}

type SchedulerConfig struct {
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

// DefaultPokeConfig returns the built-in gate thresholds.
func DefaultPokeConfig() PokeConfig {
	return PokeConfig{
		MaxPerDay:    5,
		CooldownDays: 30,
		MaxLength:    100,
		FilterURLs:   true,
		FilterEmails: true,
	}
}

// Load reads config from the given YAML file path.
// Every key can be overridden by NICKFINDER_<SECTION>_<KEY> environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("nickfinder")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// A missing file is fine: defaults plus environment still apply.
	if _, statErr := os.Stat(path); statErr == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if cfg.Poke.ProfanityFile != "" {
		words, err := LoadWordList(cfg.Poke.ProfanityFile)
		if err != nil {
			return nil, err
		}
		cfg.Poke.Profanity = append(cfg.Poke.Profanity, words...)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/nickfinder.db")
	v.SetDefault("database.max_open", 50)
	v.SetDefault("database.max_idle", 10)
	v.SetDefault("database.max_life", "1h")
	v.SetDefault("cache.redis_prefix", "nickfinder:")
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)

	p := DefaultPokeConfig()
	v.SetDefault("poke.max_per_day", p.MaxPerDay)
	v.SetDefault("poke.cooldown_days", p.CooldownDays)
	v.SetDefault("poke.max_length", p.MaxLength)
	v.SetDefault("poke.filter_urls", p.FilterURLs)
	v.SetDefault("poke.filter_emails", p.FilterEmails)
	v.SetDefault("poke.profanity", []string{})

	v.SetDefault("messaging.max_length", 2000)
	v.SetDefault("scheduler.stats_interval", "1m")
}

type wordList struct {
	Words []string `yaml:"words"`
}

// LoadWordList reads a YAML `words:` list from path.
func LoadWordList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read word list %q: %w", path, err)
	}
	var wl wordList
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return nil, fmt.Errorf("config: parse word list %q: %w", path, err)
	}
	return wl.Words, nil
}
