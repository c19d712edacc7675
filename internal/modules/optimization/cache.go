package optimization

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ResultCache persists optimization results keyed by a digest of the full
// request. Entries older than the TTL are treated as misses and lazily
// evicted.
type ResultCache struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewResultCache creates the cache table if needed. ttl <= 0 keeps entries
// forever.
func NewResultCache(db *sql.DB, ttl time.Duration, log zerolog.Logger) (*ResultCache, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS optimization_results (
			request_key TEXT PRIMARY KEY,
			payload     BLOB NOT NULL,
			created_at  INTEGER NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating optimization_results table: %w", err)
	}
	return &ResultCache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "result_cache").Logger(),
	}, nil
}

// Get returns the cached result for a request, or nil on a miss. The request
// key is returned for logging.
func (c *ResultCache) Get(req Request) (*Result, string, error) {
	key, err := requestKey(req)
	if err != nil {
		return nil, "", err
	}

	var payload []byte
	var createdAt int64
	row := c.db.QueryRow(`SELECT payload, created_at FROM optimization_results WHERE request_key = ?`, key)
	if err := row.Scan(&payload, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, key, nil
		}
		return nil, key, fmt.Errorf("reading cached result: %w", err)
	}

	if c.ttl > 0 && time.Since(time.Unix(createdAt, 0)) > c.ttl {
		if _, err := c.db.Exec(`DELETE FROM optimization_results WHERE request_key = ?`, key); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("Failed to evict expired cache entry")
		}
		return nil, key, nil
	}

	var result Result
	if err := msgpack.Unmarshal(payload, &result); err != nil {
		return nil, key, fmt.Errorf("decoding cached result: %w", err)
	}
	return &result, key, nil
}

// Put stores a result under the request's digest, replacing any prior entry.
func (c *ResultCache) Put(req Request, result *Result) error {
	key, err := requestKey(req)
	if err != nil {
		return err
	}

	payload, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO optimization_results (request_key, payload, created_at) VALUES (?, ?, ?)`,
		key, payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("storing result: %w", err)
	}
	return nil
}

// Purge removes every cached entry.
func (c *ResultCache) Purge() error {
	_, err := c.db.Exec(`DELETE FROM optimization_results`)
	return err
}

// requestKey digests the full request. JSON encoding sorts map keys, so the
// digest is deterministic for equal requests.
func requestKey(req Request) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("hashing request: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
