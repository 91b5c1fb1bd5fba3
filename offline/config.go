package offline

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultCachePrefix is the name prefix shared by all cache generations.
const DefaultCachePrefix = "praktikum-cache"

// DefaultOfflinePath is the navigation fallback served when the network is
// unreachable and no cached entry exists for the requested page.
const DefaultOfflinePath = "/offline.html"

// Config describes one cache-controller version. Pattern lists are explicit
// configuration so multiple versions and policies can be exercised side by
// side in tests.
type Config struct {
	// Version identifies the cache generation, e.g. "v3".
	Version string
	// Origin is the application origin precache paths are resolved
	// against, e.g. "https://praktikum.example.ac.id".
	Origin string
	// CachePrefix is prepended to Version to form the generation name.
	CachePrefix string
	// Precache lists static entry points fetched during install.
	Precache []string
	// AuthPatterns match requests that must never be cached.
	AuthPatterns []string
	// APIPatterns match backend REST/storage requests served network-first.
	APIPatterns []string
	// StaticExtensions are file extensions served cache-first.
	StaticExtensions []string
	// OfflinePath is the navigation fallback page.
	OfflinePath string
	// SnapshotTTL bounds how long stored responses stay valid.
	SnapshotTTL time.Duration
	// SkipWaiting activates the new version immediately after install.
	SkipWaiting bool
}

// DefaultConfig returns the controller configuration used by the praktikum
// application shell.
func DefaultConfig(version string) Config {
	return Config{
		Version:     version,
		CachePrefix: DefaultCachePrefix,
		Precache: []string{
			"/",
			"/index.html",
			"/manifest.json",
			DefaultOfflinePath,
		},
		AuthPatterns: []string{`/auth/v1/`},
		APIPatterns:  []string{`/rest/v1/`, `/storage/v1/`},
		StaticExtensions: []string{
			"css", "js", "png", "jpg", "jpeg", "svg", "gif", "webp",
			"woff", "woff2", "ttf", "ico", "json",
		},
		OfflinePath: DefaultOfflinePath,
		SnapshotTTL: 24 * time.Hour,
		SkipWaiting: true,
	}
}

// GenerationName is the namespace holding this version's cache entries.
func (c Config) GenerationName() string {
	return c.CachePrefix + "-" + c.Version
}

func (c Config) validate() error {
	if c.Version == "" {
		return fmt.Errorf("offline: config requires a version tag")
	}
	if c.CachePrefix == "" {
		return fmt.Errorf("offline: config requires a cache prefix")
	}
	if strings.Contains(c.CachePrefix+c.Version, ":") {
		return fmt.Errorf("offline: generation name must not contain ':'")
	}
	return nil
}

// matcher is the compiled form of the config's routing patterns.
type matcher struct {
	auth    []*regexp.Regexp
	api     []*regexp.Regexp
	static  map[string]struct{}
	offline string
}

func newMatcher(cfg Config) (*matcher, error) {
	m := &matcher{
		static:  make(map[string]struct{}, len(cfg.StaticExtensions)),
		offline: cfg.OfflinePath,
	}
	for _, p := range cfg.AuthPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("offline: bad auth pattern %q: %w", p, err)
		}
		m.auth = append(m.auth, re)
	}
	for _, p := range cfg.APIPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("offline: bad api pattern %q: %w", p, err)
		}
		m.api = append(m.api, re)
	}
	for _, ext := range cfg.StaticExtensions {
		m.static[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return m, nil
}

func (m *matcher) isAuth(url string) bool {
	for _, re := range m.auth {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

func (m *matcher) isAPI(url string) bool {
	for _, re := range m.api {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

func (m *matcher) isStatic(path string) bool {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || i == len(path)-1 {
		return false
	}
	_, ok := m.static[strings.ToLower(path[i+1:])]
	return ok
}
