package main

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// Config is the daemon's configuration, loaded from an optional yaml
// file overlaid with COORD_* environment variables (COORD_CACHE_DEFAULTTTL
// maps to cache.defaultttl). Durations accept str2duration syntax ("90s",
// "5m", "1d12h").
type Config struct {
	RedisURL string `koanf:"redisurl"`
	Addr     string `koanf:"addr"`
	Prefix   string `koanf:"prefix"`

	Cache struct {
		DefaultTTL string `koanf:"defaultttl"`
		ShortTTL   string `koanf:"shortttl"`
		LongTTL    string `koanf:"longttl"`
	} `koanf:"cache"`

	Lock struct {
		TTL        string `koanf:"ttl"`
		MaxRetries int    `koanf:"maxretries"`
		RetryDelay string `koanf:"retrydelay"`
	} `koanf:"lock"`

	Stream struct {
		Capacity      int    `koanf:"capacity"`
		Retention     string `koanf:"retention"`
		SweepInterval string `koanf:"sweepinterval"`
	} `koanf:"stream"`

	RateLimit struct {
		Requests int64  `koanf:"requests"`
		Window   string `koanf:"window"`
	} `koanf:"ratelimit"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.RedisURL = "redis://localhost:6379"
	cfg.Addr = ":8080"
	cfg.Prefix = "choukidar"
	cfg.RateLimit.Requests = 60
	cfg.RateLimit.Window = "1m"
	return cfg
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, errors.Wrapf(err, "loading config file %s", path)
		}
	}
	if err := k.Load(env.Provider("COORD_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "COORD_")), "_", ".")
	}), nil); err != nil {
		return cfg, errors.Wrap(err, "loading environment")
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, errors.Wrap(err, "unmarshalling config")
	}
	return cfg, nil
}

// duration parses a str2duration string, returning 0 (use the package
// default) for an empty value.
func duration(val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	d, err := str2duration.ParseDuration(val)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", val)
	}
	return d, nil
}
