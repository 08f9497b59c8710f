// Package redisstore implements the token store on Redis. Each token is
// a hash keyed by its signed encoding, with a ZSET scored by expiry so
// the sweep can find expired tokens without scanning keys.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/vending-service/internal/store"
)

const (
	keyPrefix = "unlock:token:"
	indexKey  = "unlock:tokens"

	// Keys get a TTL well past the token expiry as a backstop; the
	// sweep is still the primary cleanup so the expiry index stays
	// consistent with the hashes.
	keyRetention = time.Hour
)

// consumeScript flips the consumed field only if the token exists and is
// unconsumed. Redis executes scripts atomically, which gives the
// per-token compare-and-set the store contract requires.
var consumeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'missing'
end
if redis.call('HGET', KEYS[1], 'consumed') == '1' then
  return 'consumed'
end
redis.call('HSET', KEYS[1], 'consumed', '1')
return 'ok'
`)

// Store is a Redis-backed store.Store implementation.
type Store struct {
	client *redis.Client
}

// New wraps an existing client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Put writes the token hash and indexes it by expiry.
func (s *Store) Put(ctx context.Context, token string, rec store.Record) error {
	key := keyPrefix + token
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"orderId":   rec.OrderID,
		"door":      rec.Door,
		"email":     rec.Email,
		"consumed":  boolField(rec.Consumed),
		"issuedAt":  rec.IssuedAt.Unix(),
		"expiresAt": rec.ExpiresAt.Unix(),
	})
	pipe.ExpireAt(ctx, key, rec.ExpiresAt.Add(keyRetention))
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(rec.ExpiresAt.Unix()), Member: token})
	_, err := pipe.Exec(ctx)
	return err
}

// Get loads the token hash.
func (s *Store) Get(ctx context.Context, token string) (store.Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+token).Result()
	if err != nil {
		return store.Record{}, false, err
	}
	if len(fields) == 0 {
		return store.Record{}, false, nil
	}

	rec := store.Record{
		OrderID:  fields["orderId"],
		Email:    fields["email"],
		Consumed: fields["consumed"] == "1",
	}
	if rec.Door, err = strconv.Atoi(fields["door"]); err != nil {
		return store.Record{}, false, fmt.Errorf("corrupt door field for token: %w", err)
	}
	if issued, err := strconv.ParseInt(fields["issuedAt"], 10, 64); err == nil {
		rec.IssuedAt = time.Unix(issued, 0)
	}
	expires, err := strconv.ParseInt(fields["expiresAt"], 10, 64)
	if err != nil {
		return store.Record{}, false, fmt.Errorf("corrupt expiresAt field for token: %w", err)
	}
	rec.ExpiresAt = time.Unix(expires, 0)
	return rec, true, nil
}

// MarkConsumed runs the compare-and-set script.
func (s *Store) MarkConsumed(ctx context.Context, token string) error {
	res, err := consumeScript.Run(ctx, s.client, []string{keyPrefix + token}).Result()
	if err != nil {
		return err
	}
	switch res {
	case "ok":
		return nil
	case "consumed":
		return store.ErrAlreadyConsumed
	case "missing":
		return store.ErrNotFound
	default:
		return fmt.Errorf("unexpected consume script result %v", res)
	}
}

// Delete removes the token hash and its index entry.
func (s *Store) Delete(ctx context.Context, token string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keyPrefix+token)
	pipe.ZRem(ctx, indexKey, token)
	_, err := pipe.Exec(ctx)
	return err
}

// SweepExpired deletes every token whose expiry score has passed.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := strconv.FormatInt(now.Unix(), 10)
	expired, err := s.client.ZRangeByScore(ctx, indexKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: cutoff,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	for _, token := range expired {
		pipe.Del(ctx, keyPrefix+token)
	}
	pipe.ZRemRangeByScore(ctx, indexKey, "-inf", cutoff)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("redis client not configured")
	}
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
