package lecture

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrWong99/livelearn/internal/concept"
	"github.com/MrWong99/livelearn/pkg/types"
)

// keyPrefix namespaces every key the store writes.
const keyPrefix = "livelearn:lecture:"

// RedisStore is a [Store] backed by Redis, so several server instances can
// share lecture state. Atomicity comes from single Redis commands: HSETNX for
// concept ids and SETNX for the quiz claim.
//
// Keys per lecture:
//
//	livelearn:lecture:{id}:concepts  hash  normalised keyword -> concept id
//	livelearn:lecture:{id}:keywords  list  keywords in first-claim order
//	livelearn:lecture:{id}:quiz      string set once a quiz exists
type RedisStore struct {
	rdb *goredis.Client
	ttl time.Duration
}

// RedisOption is a functional option for [NewRedisStore].
type RedisOption func(*RedisStore)

// WithTTL expires a lecture's keys ttl after its last write. Zero keeps them
// forever. Default: 24h.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore connects to addr, verifies the connection with PING and
// returns the store.
func NewRedisStore(ctx context.Context, addr string, db int, opts ...RedisOption) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("lecture: redis ping: %w", err)
	}

	s := &RedisStore{rdb: rdb, ttl: 24 * time.Hour}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Ping checks that Redis is reachable. Used by readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func conceptsKey(id string) string { return keyPrefix + id + ":concepts" }
func keywordsKey(id string) string { return keyPrefix + id + ":keywords" }
func quizKey(id string) string     { return keyPrefix + id + ":quiz" }

// touch refreshes the TTL on the given keys.
func (s *RedisStore) touch(ctx context.Context, keys ...string) error {
	if s.ttl <= 0 {
		return nil
	}
	_, err := s.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, k := range keys {
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	return err
}

// Claim implements [Store].
func (s *RedisStore) Claim(ctx context.Context, lectureID, keyword, candidateID string) (string, bool, error) {
	key := concept.Normalize(keyword)
	ck := conceptsKey(lectureID)

	created, err := s.rdb.HSetNX(ctx, ck, key, candidateID).Result()
	if err != nil {
		return "", false, fmt.Errorf("lecture: claim %q: %w", keyword, err)
	}
	if !created {
		id, err := s.rdb.HGet(ctx, ck, key).Result()
		if err != nil {
			return "", false, fmt.Errorf("lecture: read claimed %q: %w", keyword, err)
		}
		return id, false, nil
	}

	kk := keywordsKey(lectureID)
	if err := s.rdb.RPush(ctx, kk, keyword).Err(); err != nil {
		return candidateID, true, fmt.Errorf("lecture: record keyword %q: %w", keyword, err)
	}
	if err := s.touch(ctx, ck, kk); err != nil {
		return candidateID, true, fmt.Errorf("lecture: refresh ttl: %w", err)
	}
	return candidateID, true, nil
}

// Known implements [Store].
func (s *RedisStore) Known(ctx context.Context, lectureID string) ([]types.KnownConcept, error) {
	ids, err := s.rdb.HGetAll(ctx, conceptsKey(lectureID)).Result()
	if err != nil {
		return nil, fmt.Errorf("lecture: load concepts: %w", err)
	}
	keywords, err := s.rdb.LRange(ctx, keywordsKey(lectureID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lecture: load keywords: %w", err)
	}

	out := make([]types.KnownConcept, 0, len(ids))
	for _, kw := range keywords {
		key := concept.Normalize(kw)
		id, ok := ids[key]
		if !ok {
			continue
		}
		out = append(out, types.KnownConcept{ID: id, Keyword: kw})
		delete(ids, key)
	}
	// Claims whose keyword push failed still count as known.
	for key, id := range ids {
		out = append(out, types.KnownConcept{ID: id, Keyword: key})
	}
	return out, nil
}

// Keywords implements [Store].
func (s *RedisStore) Keywords(ctx context.Context, lectureID string, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	kws, err := s.rdb.LRange(ctx, keywordsKey(lectureID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("lecture: load keywords: %w", err)
	}
	return kws, nil
}

// MarkQuiz implements [Store].
func (s *RedisStore) MarkQuiz(ctx context.Context, lectureID string) error {
	if err := s.rdb.Set(ctx, quizKey(lectureID), "1", s.ttl).Err(); err != nil {
		return fmt.Errorf("lecture: mark quiz: %w", err)
	}
	return nil
}

// ClaimQuiz implements [Store].
func (s *RedisStore) ClaimQuiz(ctx context.Context, lectureID string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, quizKey(lectureID), "1", s.ttl).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return false, fmt.Errorf("lecture: claim quiz: %w", err)
	}
	return ok, nil
}

var _ Store = (*RedisStore)(nil)
