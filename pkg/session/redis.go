package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// RedisConfig holds connection parameters for the Redis registry.
type RedisConfig struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

const defaultKeyPrefix = "facefolio:session:"

// RedisRegistry stores sessions in Redis so several server processes can
// share them. Retirement uses GETDEL, which is atomic on the server.
type RedisRegistry struct {
	client rueidis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisRegistry connects to Redis via rueidis.
func NewRedisRegistry(cfg RedisConfig) (*RedisRegistry, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return newRedisRegistry(client, cfg.KeyPrefix, cfg.TTL), nil
}

func newRedisRegistry(client rueidis.Client, prefix string, ttl time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// Ping checks connectivity.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	cmd := r.b().Ping().Build()
	if err := r.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (r *RedisRegistry) Close() {
	r.client.Close()
}

func (r *RedisRegistry) key(token string) string {
	return r.prefix + token
}

func (r *RedisRegistry) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return r.client.Do(ctx, cmd)
}

func (r *RedisRegistry) b() rueidis.Builder {
	return r.client.B()
}

func (r *RedisRegistry) set(ctx context.Context, s *Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	var cmd rueidis.Completed
	if ttl > 0 {
		cmd = r.b().Set().Key(r.key(s.Token)).Value(string(data)).Ex(ttl).Build()
	} else {
		cmd = r.b().Set().Key(r.key(s.Token)).Value(string(data)).Build()
	}
	if err := r.do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("store session %s: %w", s.Token, err)
	}
	return nil
}

func decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Create implements Registry.
func (r *RedisRegistry) Create(ctx context.Context, s *Session) (string, error) {
	stored := s.Clone()
	stored.Token = uuid.NewString()
	stored.CreatedAt = r.now()
	if r.ttl > 0 {
		stored.ExpiresAt = stored.CreatedAt.Add(r.ttl)
	}
	if err := r.set(ctx, stored, r.ttl); err != nil {
		return "", err
	}
	return stored.Token, nil
}

// Get implements Registry.
func (r *RedisRegistry) Get(ctx context.Context, token string) (*Session, error) {
	cmd := r.b().Get().Key(r.key(token)).Build()
	data, err := r.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session %s: %w", token, err)
	}
	return decode(data)
}

// Retire implements Registry.
func (r *RedisRegistry) Retire(ctx context.Context, token string) (*Session, error) {
	cmd := r.b().Getdel().Key(r.key(token)).Build()
	data, err := r.do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("retire session %s: %w", token, err)
	}
	return decode(data)
}

// Restore implements Registry. The session keeps its original expiry; one
// that has already expired is not restored.
func (r *RedisRegistry) Restore(ctx context.Context, s *Session) error {
	ttl := time.Duration(0)
	if !s.ExpiresAt.IsZero() {
		ttl = s.ExpiresAt.Sub(r.now())
		if ttl < time.Second {
			return ErrSessionNotFound
		}
	}
	return r.set(ctx, s, ttl)
}
