// Package redis provides a Redis-backed checkpoint store for deployments where
// several processes serve the same conversation threads.
//
// Each thread is stored as one JSON value under "<prefix>:checkpoint:<thread id>".
// Saves take a per-thread redsync mutex so at most one writer updates a thread
// at a time, even across processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/logger"
)

// Defaults for Options.
const (
	DefaultKeyPrefix   = "sercha-chat"
	DefaultTTL         = 7 * 24 * time.Hour
	DefaultLockExpiry  = 10 * time.Second
	DefaultLockTries   = 8
	DefaultPingTimeout = 5 * time.Second
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// Options configures a CheckpointStore.
type Options struct {
	// KeyPrefix namespaces every key. Defaults to DefaultKeyPrefix.
	KeyPrefix string

	// TTL is the retention of an idle thread. Zero keeps checkpoints forever.
	TTL time.Duration

	// LockExpiry bounds how long a crashed writer can hold a thread lock.
	LockExpiry time.Duration

	// LockTries is the number of attempts to take the thread lock.
	LockTries int
}

func (o Options) withDefaults() Options {
	if o.KeyPrefix == "" {
		o.KeyPrefix = DefaultKeyPrefix
	}
	if o.TTL < 0 {
		o.TTL = 0
	}
	if o.LockExpiry <= 0 {
		o.LockExpiry = DefaultLockExpiry
	}
	if o.LockTries <= 0 {
		o.LockTries = DefaultLockTries
	}
	return o
}

// CheckpointStore stores conversation state in Redis.
type CheckpointStore struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	opts   Options
}

// NewCheckpointStore wraps an existing client.
func NewCheckpointStore(client redis.UniversalClient, opts Options) *CheckpointStore {
	return &CheckpointStore{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts.withDefaults(),
	}
}

// Connect parses redisURL, pings the server and returns a store using it.
// redisURL may be a single URL or a comma-separated list of cluster nodes.
func Connect(ctx context.Context, redisURL string, opts Options) (*CheckpointStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis url: %w", domain.ErrInvalidInput)
	}

	uopts, err := buildUniversalOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if len(uopts.Addrs) > 1 && uopts.DB != 0 {
		logger.Warn("ignoring redis db %d for cluster configuration", uopts.DB)
		uopts.DB = 0
	}

	client := redis.NewUniversalClient(uopts)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	logger.Info("connected to redis checkpoint store (%d node(s))", len(uopts.Addrs))
	return NewCheckpointStore(client, opts), nil
}

// Load returns the checkpoint for threadID, or nil if none exists.
func (s *CheckpointStore) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	raw, err := s.client.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", threadID, err)
	}
	return &state, nil
}

// Save writes the checkpoint for threadID while holding the thread's lock.
func (s *CheckpointStore) Save(ctx context.Context, threadID string, state *domain.ConversationState) error {
	if state == nil {
		return domain.ErrInvalidInput
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	mutex := s.rs.NewMutex(s.lockKey(threadID),
		redsync.WithExpiry(s.opts.LockExpiry),
		redsync.WithTries(s.opts.LockTries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("locking thread %s: %w: %v", threadID, domain.ErrLockNotAcquired, err)
	}
	defer func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to unlock thread %s: %v", threadID, err)
		}
	}()

	if err := s.client.Set(ctx, s.key(threadID), data, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *CheckpointStore) Close() error {
	return s.client.Close()
}

func (s *CheckpointStore) key(threadID string) string {
	return s.opts.KeyPrefix + ":checkpoint:" + threadID
}

func (s *CheckpointStore) lockKey(threadID string) string {
	return s.opts.KeyPrefix + ":lock:" + threadID
}

// buildUniversalOptions accepts a comma-separated list of redis URLs or
// host:port addresses. Connection settings come from the first URL that sets them.
func buildUniversalOptions(raw string) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "://") {
			opts.Addrs = append(opts.Addrs, part)
			continue
		}

		parsed, err := redis.ParseURL(part)
		if err != nil {
			return nil, err
		}
		opts.Addrs = append(opts.Addrs, parsed.Addr)
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
		if opts.TLSConfig == nil {
			opts.TLSConfig = parsed.TLSConfig
		}
		if opts.DialTimeout == 0 {
			opts.DialTimeout = parsed.DialTimeout
		}
		if opts.ReadTimeout == 0 {
			opts.ReadTimeout = parsed.ReadTimeout
		}
		if opts.WriteTimeout == 0 {
			opts.WriteTimeout = parsed.WriteTimeout
		}
	}

	if len(opts.Addrs) == 0 {
		return nil, fmt.Errorf("no redis addresses provided")
	}
	return opts, nil
}
