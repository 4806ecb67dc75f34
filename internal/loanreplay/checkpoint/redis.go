// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisEvaler abstracts the minimal Redis surface a checkpoint store
// needs: scripted compare-and-set plus a plain read.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	Get(ctx context.Context, key string) (string, error)
}

// RedisStore persists next_offset per job id, advancing it only when the
// new value is strictly greater than what is already stored, via a Lua
// script so the read-compare-write is atomic under concurrent retries of
// the same job id.
type RedisStore struct {
	client RedisEvaler
	ttl    time.Duration
}

// NewRedisStore returns a store with the given client and marker TTL.
// ttl <= 0 defaults to 24 hours, comfortably longer than any retry chain.
func NewRedisStore(client RedisEvaler, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func checkpointKey(jobID string) string { return fmt.Sprintf("loan-replay:offset:%s", jobID) }

const checkpointLuaScript = `
local key = KEYS[1]
local newOffset = tonumber(ARGV[1])
local ttlSeconds = tonumber(ARGV[2])
local cur = redis.call('GET', key)
if not cur or newOffset > tonumber(cur) then
  redis.call('SET', key, newOffset)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', key, ttlSeconds)
  end
  return 1
else
  return 0
end
`

// SetNextOffset advances the stored offset for jobID if offset is
// strictly greater than the current value; otherwise it is a no-op.
func (s *RedisStore) SetNextOffset(ctx context.Context, jobID string, offset int64) error {
	keys := []string{checkpointKey(jobID)}
	args := []interface{}{offset, int(s.ttl.Seconds())}
	if _, err := s.client.Eval(ctx, checkpointLuaScript, keys, args...); err != nil {
		return fmt.Errorf("checkpoint: redis eval job=%s offset=%d: %w", jobID, offset, err)
	}
	return nil
}

// GetNextOffset returns the stored offset for jobID, or ok=false if none
// has been recorded yet.
func (s *RedisStore) GetNextOffset(ctx context.Context, jobID string) (int64, bool, error) {
	v, err := s.client.Get(ctx, checkpointKey(jobID))
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("checkpoint: redis get job=%s: %w", jobID, err)
	}
	offset, perr := strconv.ParseInt(v, 10, 64)
	if perr != nil {
		return 0, false, fmt.Errorf("checkpoint: stored offset for job=%s is not an integer: %w", jobID, perr)
	}
	return offset, true, nil
}

// GoRedisStore wraps a real github.com/redis/go-redis/v9 client.
type GoRedisStore struct{ c *redis.Client }

// NewGoRedisEvaler constructs the go-redis-backed RedisEvaler for a
// checkpoint RedisStore, given an address like "127.0.0.1:6379".
func NewGoRedisEvaler(addr string) *GoRedisStore {
	return &GoRedisStore{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

func (g *GoRedisStore) Get(ctx context.Context, key string) (string, error) {
	return g.c.Get(ctx, key).Result()
}
