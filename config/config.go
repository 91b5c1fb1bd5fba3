package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"github.com/praktikumlab/go-praktikum/outbox"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "PRAKTIKUM_"

// Duration is a time.Duration that unmarshals from yaml strings like "30m"
// or "7d" (day and week suffixes are accepted).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	dur, err := str2duration.ParseDuration(node.Value)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", node.Value)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the praktikum gateway configuration, normally loaded from
// praktikum.yaml with environment overrides on top.
type Config struct {
	// Version tags the cache generation. Bumping it triggers a new
	// install/activate cycle on the next start.
	Version string `yaml:"version"`
	// Listen is the address of the control and metrics HTTP server.
	Listen string `yaml:"listen"`
	// Upstream is the backend origin the gateway fronts.
	Upstream string `yaml:"upstream"`

	Cache     CacheConfig     `yaml:"cache"`
	Offline   OfflineConfig   `yaml:"offline"`
	Outbox    OutboxConfig    `yaml:"outbox"`
	Session   SessionConfig   `yaml:"session"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// CacheConfig selects and tunes the snapshot store backend.
type CacheConfig struct {
	// Backend is one of "memory", "redis", or "sqlite".
	Backend string `yaml:"backend"`
	// RedisAddr is the redis host:port when Backend is "redis".
	RedisAddr string `yaml:"redis_addr"`
	// Path is the database file when Backend is "sqlite".
	Path string `yaml:"path"`
	// Expires is the default ttl for stored snapshots.
	Expires Duration `yaml:"expires"`
}

// OfflineConfig tunes the offline cache controller.
type OfflineConfig struct {
	Precache    []string `yaml:"precache"`
	OfflinePath string   `yaml:"offline_path"`
	SkipWaiting bool     `yaml:"skip_waiting"`
	SnapshotTTL Duration `yaml:"snapshot_ttl"`
}

// OutboxConfig tunes the offline write queue.
type OutboxConfig struct {
	// Path is the sqlite file backing the queue.
	Path string `yaml:"path"`
	// SyncURL receives queued kuis attempts when connectivity returns.
	SyncURL string `yaml:"sync_url"`
}

// SessionConfig tunes the session lifecycle manager.
type SessionConfig struct {
	Timeout          Duration `yaml:"timeout"`
	Warning          Duration `yaml:"warning"`
	CheckInterval    Duration `yaml:"check_interval"`
	RefreshInterval  Duration `yaml:"refresh_interval"`
	RefreshWindow    Duration `yaml:"refresh_window"`
	ActivityThrottle Duration `yaml:"activity_throttle"`
}

// AuthConfig points at the hosted auth service.
type AuthConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// TelemetryConfig enables otlp log export when CollectorURL is set.
type TelemetryConfig struct {
	CollectorURL string `yaml:"collector_url"`
	AuthToken    string `yaml:"auth_token"`
	ServiceName  string `yaml:"service_name"`
}

// Default returns the configuration the gateway runs with when no file or
// environment overrides are present.
func Default() Config {
	return Config{
		Version:  "v1",
		Listen:   ":8787",
		Upstream: "http://localhost:3000",
		Cache: CacheConfig{
			Backend: "memory",
			Expires: Duration(24 * time.Hour),
		},
		Offline: OfflineConfig{
			OfflinePath: "/offline.html",
			SnapshotTTL: Duration(24 * time.Hour),
			SkipWaiting: true,
		},
		Outbox: OutboxConfig{
			Path: outbox.DatabaseName,
		},
		Session: SessionConfig{
			Timeout:          Duration(30 * time.Minute),
			Warning:          Duration(5 * time.Minute),
			CheckInterval:    Duration(time.Minute),
			RefreshInterval:  Duration(time.Minute),
			RefreshWindow:    Duration(5 * time.Minute),
			ActivityThrottle: Duration(30 * time.Second),
		},
		Telemetry: TelemetryConfig{
			ServiceName: "praktikum-gateway",
		},
	}
}

// Load reads the yaml file at path (missing file is fine, defaults apply)
// and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, errors.Wrapf(err, "reading %s", path)
			}
		} else if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parsing %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString(&c.Version, "VERSION")
	envString(&c.Listen, "LISTEN")
	envString(&c.Upstream, "UPSTREAM")
	envString(&c.Cache.Backend, "CACHE_BACKEND")
	envString(&c.Cache.RedisAddr, "REDIS_ADDR")
	envString(&c.Cache.Path, "CACHE_PATH")
	envString(&c.Outbox.Path, "OUTBOX_PATH")
	envString(&c.Outbox.SyncURL, "SYNC_URL")
	envString(&c.Auth.BaseURL, "AUTH_URL")
	envString(&c.Auth.APIKey, "AUTH_API_KEY")
	envString(&c.Telemetry.CollectorURL, "OTLP_URL")
	envString(&c.Telemetry.AuthToken, "OTLP_TOKEN")
	envString(&c.Telemetry.ServiceName, "SERVICE_NAME")
	for _, v := range []struct {
		key string
		dst *Duration
	}{
		{"CACHE_EXPIRES", &c.Cache.Expires},
		{"SNAPSHOT_TTL", &c.Offline.SnapshotTTL},
		{"SESSION_TIMEOUT", &c.Session.Timeout},
		{"SESSION_WARNING", &c.Session.Warning},
		{"SESSION_CHECK_INTERVAL", &c.Session.CheckInterval},
		{"SESSION_REFRESH_INTERVAL", &c.Session.RefreshInterval},
		{"SESSION_REFRESH_WINDOW", &c.Session.RefreshWindow},
		{"ACTIVITY_THROTTLE", &c.Session.ActivityThrottle},
	} {
		if err := envDuration(v.dst, v.key); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "redis", "sqlite":
	default:
		return errors.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return errors.New("cache.redis_addr is required for the redis backend")
	}
	if c.Cache.Backend == "sqlite" && c.Cache.Path == "" {
		return errors.New("cache.path is required for the sqlite backend")
	}
	if c.Session.Warning.Std() >= c.Session.Timeout.Std() {
		return errors.New("session.warning must be shorter than session.timeout")
	}
	return nil
}

func envString(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envDuration(dst *Duration, key string) error {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return nil
	}
	dur, err := str2duration.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(err, "invalid %s%s", EnvPrefix, key)
	}
	*dst = Duration(dur)
	return nil
}
