// Package redisstore implements store.Store on Redis sorted sets. Watch maps
// onto WATCH/MULTI/EXEC, so any number of processes can share a queue.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/prakharsharma/redis-sorted-set-based-poller/internal/store"
)

// Store is safe for concurrent use.
type Store struct {
	client     redis.UniversalClient
	ownsClient bool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing client. Close does not close it.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Open connects to the server described by url (redis://[:password@]host:port/db
// or rediss:// for TLS) and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: failed to connect to %s: %w", opts.Addr, err)
	}
	return &Store{client: client, ownsClient: true}, nil
}

// zreader is the read command surface shared by *redis.Client and *redis.Tx.
type zreader interface {
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	ZScore(ctx context.Context, key, member string) *redis.FloatCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

type reader struct {
	c zreader
}

func (r reader) Range(ctx context.Context, key string, start, stop int64, reverse bool) ([]store.Item, error) {
	var cmd *redis.ZSliceCmd
	if reverse {
		cmd = r.c.ZRevRangeWithScores(ctx, key, start, stop)
	} else {
		cmd = r.c.ZRangeWithScores(ctx, key, start, stop)
	}
	zs, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	out := make([]store.Item, 0, len(zs))
	for _, z := range zs {
		out = append(out, store.Item{Score: z.Score, Member: fmt.Sprint(z.Member)})
	}
	return out, nil
}

func (r reader) Score(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := r.c.ZScore(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (r reader) Card(ctx context.Context, key string) (int64, error) {
	return r.c.ZCard(ctx, key).Result()
}

func (r reader) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *Store) Range(ctx context.Context, key string, start, stop int64, reverse bool) ([]store.Item, error) {
	return reader{s.client}.Range(ctx, key, start, stop, reverse)
}

func (s *Store) Score(ctx context.Context, key, member string) (float64, bool, error) {
	return reader{s.client}.Score(ctx, key, member)
}

func (s *Store) Card(ctx context.Context, key string) (int64, error) {
	return reader{s.client}.Card(ctx, key)
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return reader{s.client}.Exists(ctx, key)
}

func (s *Store) Add(ctx context.Context, key string, items ...store.Item) error {
	if len(items) == 0 {
		return nil
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return err
		}
	}
	return s.client.ZAdd(ctx, key, toZ(items)...).Err()
}

func (s *Store) Remove(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	return s.client.ZRem(ctx, key, toAny(members)...).Result()
}

func (s *Store) UnionStore(ctx context.Context, dest string, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, s.client.Del(ctx, dest).Err()
	}
	return s.client.ZUnionStore(ctx, dest, &redis.ZStore{Keys: keys}).Result()
}

// Watch runs fn on a connection that WATCHes keys and sends fn's buffered
// writes as one MULTI/EXEC. A failed EXEC is reported as store.ErrConflict.
func (s *Store) Watch(ctx context.Context, fn func(tx store.Txn) error, keys ...string) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		t := &txn{reader: reader{rtx}}
		if err := fn(t); err != nil {
			return err
		}
		if t.Len() == 0 {
			return nil
		}
		if err := t.Validate(); err != nil {
			return err
		}
		_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range t.Ops() {
				queue(ctx, pipe, op)
			}
			return nil
		})
		return err
	}, keys...)
	if errors.Is(err, redis.TxFailedErr) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

func queue(ctx context.Context, pipe redis.Pipeliner, op store.Op) {
	switch op.Kind {
	case store.OpAdd:
		pipe.ZAdd(ctx, op.Key, toZ(op.Items)...)
	case store.OpAddNX:
		pipe.ZAddNX(ctx, op.Key, toZ(op.Items)...)
	case store.OpRemove:
		pipe.ZRem(ctx, op.Key, toAny(op.Members)...)
	case store.OpUnionStore:
		if len(op.Sources) == 0 {
			pipe.Del(ctx, op.Key)
			return
		}
		pipe.ZUnionStore(ctx, op.Key, &redis.ZStore{Keys: op.Sources})
	}
}

type txn struct {
	reader
	store.Batch
}

func toZ(items []store.Item) []redis.Z {
	zs := make([]redis.Z, len(items))
	for i, it := range items {
		zs[i] = redis.Z{Score: it.Score, Member: it.Member}
	}
	return zs
}

func toAny(members []string) []interface{} {
	out := make([]interface{}, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}
