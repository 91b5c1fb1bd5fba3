package cache

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

type sqliteCache struct {
	db        *sql.DB
	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Cache = (*sqliteCache)(nil)

// NewSQLite returns a Cache backed by SQLite. If dbPath is empty or
// ":memory:", an in-memory database is used.
func NewSQLite(parent context.Context, dbPath string, opts ...Option) (Cache, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// WAL mode for better concurrent performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL,
		hits INTEGER NOT NULL DEFAULT 0
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_expires_at ON cache(expires_at)`); err != nil {
		db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	c := &sqliteCache{
		db:     db,
		ctx:    ctx,
		cancel: cancel,
		cfg:    applyOptions(opts),
	}
	c.waitGroup.Add(1)
	go c.run()
	return c, nil
}

func (c *sqliteCache) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.cfg.queryTimeout)
}

func (c *sqliteCache) Get(ctx context.Context, key string) (bool, any, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	now := time.Now().UnixNano()
	var data []byte
	var expiresAt int64
	err := c.db.QueryRowContext(qctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if expiresAt < now {
		// Lazily delete the expired entry.
		_, _ = c.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ?`, key)
		return false, nil, nil
	}
	_, _ = c.db.ExecContext(qctx, `UPDATE cache SET hits = hits + 1 WHERE key = ?`, key)
	return true, data, nil
}

func (c *sqliteCache) Set(ctx context.Context, key string, val any, expires time.Duration) error {
	if expires <= 0 {
		expires = c.cfg.defaultExpires
	}
	data, err := msgpack.Marshal(val)
	if err != nil {
		return err
	}
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	_, err = c.db.ExecContext(qctx,
		`INSERT INTO cache (key, value, expires_at, hits) VALUES (?, ?, ?, 0)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, hits = 0`,
		key, data, time.Now().Add(expires).UnixNano())
	return err
}

func (c *sqliteCache) Hits(ctx context.Context, key string) (bool, int) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	var hits int
	err := c.db.QueryRowContext(qctx, `SELECT hits FROM cache WHERE key = ?`, key).Scan(&hits)
	if err != nil {
		return false, 0
	}
	return true, hits
}

func (c *sqliteCache) Expire(ctx context.Context, key string) (bool, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	res, err := c.db.ExecContext(qctx, `DELETE FROM cache WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *sqliteCache) Namespaces(ctx context.Context) ([]string, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	rows, err := c.db.QueryContext(qctx,
		`SELECT DISTINCT substr(key, 1, instr(key, ?) - 1) FROM cache WHERE instr(key, ?) > 1`,
		NamespaceSeparator, NamespaceSeparator)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var namespaces []string
	for rows.Next() {
		var ns string
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		namespaces = append(namespaces, ns)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(namespaces)
	return namespaces, nil
}

func (c *sqliteCache) Drop(ctx context.Context, namespace string) (int, error) {
	qctx, cancel := c.queryCtx(ctx)
	defer cancel()
	res, err := c.db.ExecContext(qctx,
		`DELETE FROM cache WHERE key LIKE ? ESCAPE '\'`,
		likeEscape(namespace+NamespaceSeparator)+"%")
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *sqliteCache) Close(_ context.Context) error {
	var err error
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
		err = c.db.Close()
	})
	return err
}

func (c *sqliteCache) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.expiryCheck)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.db.Exec(`DELETE FROM cache WHERE expires_at < ?`, time.Now().UnixNano())
		}
	}
}

func likeEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
