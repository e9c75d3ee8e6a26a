package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Host           string
	Port           string
	AllowedOrigin  string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	CacheBackend   string
	CachePath      string
	AuthSecret     string
	SessionTTL     time.Duration
	TaxRatePercent float64
	Timezone       string
	SyncInterval   time.Duration
	ProbeInterval  time.Duration
	KafkaBrokers   []string
	KafkaTopic     string
	LogMode        string
	LogFile        string
}

const (
	CacheBolt   = "bolt"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// Load reads the configuration from the environment. When POS_CONFIG_FILE
// names a YAML file its keys (the same names as the environment variables)
// fill in anything the environment leaves unset.
func Load() (Config, error) {
	file := map[string]string{}
	if path := strings.TrimSpace(os.Getenv("POS_CONFIG_FILE")); path != "" {
		var err error
		file, err = readFile(path)
		if err != nil {
			return Config{}, err
		}
	}
	get := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if val, ok := file[key]; ok && val != "" {
			return val
		}
		return fallback
	}

	sessionMinutes := cast.ToInt(get("SESSION_TTL_MINUTES", "480"))
	if sessionMinutes < 1 {
		sessionMinutes = 480
	}

	cfg := Config{
		Host:           get("HOST", "127.0.0.1"),
		Port:           get("PORT", "8080"),
		AllowedOrigin:  get("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:    get("DATABASE_URL", ""),
		RedisAddr:      get("REDIS_ADDR", ""),
		RedisPassword:  get("REDIS_PASSWORD", ""),
		RedisDB:        cast.ToInt(get("REDIS_DB", "0")),
		CacheBackend:   strings.ToLower(get("CACHE_BACKEND", CacheBolt)),
		CachePath:      get("CACHE_PATH", "nexuspos.db"),
		AuthSecret:     strings.TrimSpace(get("AUTH_SECRET", "")),
		SessionTTL:     time.Duration(sessionMinutes) * time.Minute,
		TaxRatePercent: cast.ToFloat64(get("TAX_RATE_PERCENT", "0")),
		Timezone:       get("TIMEZONE", "Local"),
		SyncInterval:   duration(get("SYNC_INTERVAL", "30s"), 30*time.Second),
		ProbeInterval:  duration(get("PROBE_INTERVAL", "10s"), 10*time.Second),
		KafkaBrokers:   splitList(get("KAFKA_BROKERS", "")),
		KafkaTopic:     get("KAFKA_TOPIC", "pos.sales"),
		LogMode:        get("LOG_MODE", "production"),
		LogFile:        get("LOG_FILE", ""),
	}

	return cfg, nil
}

// Address is the listen address. The till binds to loopback unless HOST
// says otherwise.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// Location resolves Timezone, falling back to the process local zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]interface{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(values))
	for key, val := range values {
		if list, ok := val.([]interface{}); ok {
			out[strings.ToUpper(key)] = strings.Join(cast.ToStringSlice(list), ",")
			continue
		}
		out[strings.ToUpper(key)] = cast.ToString(val)
	}
	return out, nil
}

// duration accepts Go durations ("30s") and bare seconds ("30").
func duration(raw string, fallback time.Duration) time.Duration {
	d, err := cast.ToDurationE(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	if !strings.ContainsAny(raw, "hmsunµ") {
		d = time.Duration(cast.ToInt64(raw)) * time.Second
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
