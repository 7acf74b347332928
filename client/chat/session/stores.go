package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type MemoryStore struct {
	mu    sync.Mutex
	token string
	ok    bool
	// Saves and Deletes count durable writes for tests.
	Saves   int
	Deletes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWithToken starts with a token already persisted.
func NewMemoryStoreWithToken(token string) *MemoryStore {
	return &MemoryStore{token: token, ok: true}
}

func (m *MemoryStore) Load(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.ok, nil
}

func (m *MemoryStore) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.ok = token, true
	m.Saves++
	return nil
}

func (m *MemoryStore) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.ok = "", false
	m.Deletes++
	return nil
}

// Persisted reports what a restarted process would load.
func (m *MemoryStore) Persisted() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.ok
}

// FileStore keeps the token in a small JSON document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath resolves <config dir>/tgchat/<profile>/session.json.
func DefaultFilePath(profile string) (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = "default"
	}
	return filepath.Join(dir, "tgchat", profile, "session.json"), nil
}

func (f *FileStore) Load(context.Context) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var doc map[string]string
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", false, fmt.Errorf("decode session file %s: %w", f.path, err)
	}
	token := strings.TrimSpace(doc[TokenKey])
	return token, token != "", nil
}

func (f *FileStore) Save(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(map[string]string{TokenKey: token})
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Delete(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "tgchat"
	}
	return &RedisStore{client: client, key: prefix + ":" + TokenKey}
}

func (r *RedisStore) Load(ctx context.Context) (string, bool, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

func (r *RedisStore) Save(ctx context.Context, token string) error {
	return r.client.Set(ctx, r.key, token, 0).Err()
}

func (r *RedisStore) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS client_session (
			key        TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (p *PostgresStore) Load(ctx context.Context) (string, bool, error) {
	var token string
	err := p.db.QueryRow(ctx, `SELECT token FROM client_session WHERE key=$1`, TokenKey).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

func (p *PostgresStore) Save(ctx context.Context, token string) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO client_session (key, token, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET token=EXCLUDED.token, updated_at=now()
	`, TokenKey, token)
	return err
}

func (p *PostgresStore) Delete(ctx context.Context) error {
	_, err := p.db.Exec(ctx, `DELETE FROM client_session WHERE key=$1`, TokenKey)
	return err
}

func (p *PostgresStore) Close() error {
	p.db.Close()
	return nil
}
