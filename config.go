package main

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"choreshore-bridge/domain"
)

const (
	defaultUpdateInterval = 300
	defaultPort           = "8080"
)

type config struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HouseholdID string
	UserID      string

	Interval        time.Duration
	DisplayName     string
	Mode            domain.Source
	Location        *time.Location
	RequestTimeout  time.Duration
	ValidateOnStart bool

	RedisConn       string
	SnapshotTTL     time.Duration
	SnapshotChannel string
	DeduperTTL      time.Duration

	HAURL   string
	HAToken string

	LocalAuthMode   string
	LocalAuthSecret string
	Auth0Domain     string
	Auth0Audience   string

	Port  string
	Debug bool
}

// loadConfig reads the environment through getenv.
func loadConfig(getenv func(string) string) (config, error) {
	cfg := config{
		BaseURL:         strings.TrimSpace(getenv("CHORESHORE_BASE_URL")),
		APIKey:          getenv("CHORESHORE_API_KEY"),
		BearerToken:     getenv("CHORESHORE_BEARER_TOKEN"),
		HouseholdID:     strings.TrimSpace(getenv("HOUSEHOLD_ID")),
		UserID:          strings.TrimSpace(getenv("USER_ID")),
		DisplayName:     getenv("DISPLAY_NAME"),
		RedisConn:       getenv("REDIS_CONNECTION_STRING"),
		SnapshotChannel: getenv("SNAPSHOT_CHANNEL"),
		HAURL:           getenv("HA_URL"),
		HAToken:         getenv("HA_TOKEN"),
		LocalAuthMode:   strings.ToLower(getenv("LOCAL_AUTH_MODE")),
		LocalAuthSecret: getenv("LOCAL_AUTH_SHARED_SECRET"),
		Auth0Domain:     getenv("AUTH0_DOMAIN"),
		Auth0Audience:   getenv("AUTH0_AUDIENCE"),
		Port:            defaultPort,
	}
	if cfg.BaseURL == "" || cfg.APIKey == "" {
		return cfg, errors.New("missing backend config")
	}
	if cfg.HouseholdID == "" {
		return cfg, errors.New("missing HOUSEHOLD_ID")
	}
	if v := getenv("PORT"); v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return cfg, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = v
	}

	var err error
	if cfg.Debug, err = envBool(getenv, "DEBUG", false); err != nil {
		return cfg, err
	}
	if cfg.ValidateOnStart, err = envBool(getenv, "VALIDATE_ON_START", true); err != nil {
		return cfg, err
	}
	if cfg.Interval, err = envSeconds(getenv, "UPDATE_INTERVAL", defaultUpdateInterval); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = envDur(getenv, "REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.SnapshotTTL, err = envDur(getenv, "SNAPSHOT_TTL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.DeduperTTL, err = envDur(getenv, "DEDUPER_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}

	switch mode := strings.ToLower(getenv("FETCH_MODE")); mode {
	case "", string(domain.SourceREST):
		cfg.Mode = domain.SourceREST
	case string(domain.SourceEdge):
		cfg.Mode = domain.SourceEdge
	default:
		return cfg, fmt.Errorf("invalid FETCH_MODE %q", mode)
	}

	cfg.Location = time.Local
	if tz := getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return cfg, fmt.Errorf("invalid TIMEZONE: %w", err)
		}
		cfg.Location = loc
	}

	switch cfg.LocalAuthMode {
	case "":
	case "hs256":
		if cfg.LocalAuthSecret == "" {
			return cfg, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256")
		}
	default:
		return cfg, fmt.Errorf("unsupported LOCAL_AUTH_MODE value %q", cfg.LocalAuthMode)
	}
	if (cfg.Auth0Domain == "") != (cfg.Auth0Audience == "") {
		return cfg, errors.New("AUTH0_DOMAIN and AUTH0_AUDIENCE must be set together")
	}
	if (cfg.HAURL == "") != (cfg.HAToken == "") {
		return cfg, errors.New("HA_URL and HA_TOKEN must be set together")
	}
	return cfg, nil
}

func envBool(getenv func(string) string, key string, def bool) (bool, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDur(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}

// envSeconds accepts a plain number of seconds or a duration string.
func envSeconds(getenv func(string) string, key string, def int) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return time.Duration(def) * time.Second, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
		}
		return time.Duration(n) * time.Second, nil
	}
	return envDur(getenv, key, time.Duration(def)*time.Second)
}

// parseRedisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func parseRedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
