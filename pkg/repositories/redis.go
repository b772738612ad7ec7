package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "skate"

// redisScanPageSize is how many documents a query loads per round trip.
const redisScanPageSize = 100

func redisDocKey(collection, id string) string {
	return fmt.Sprintf("%s:doc:%s:%s", redisKeyPrefix, collection, id)
}

// redisIndexKey names the sorted set of document ids of a collection, scored by creation time.
func redisIndexKey(collection string) string {
	return fmt.Sprintf("%s:idx:%s", redisKeyPrefix, collection)
}

// RedisRepository stores documents as JSON strings. Transactions are optimistic:
// every key read is WATCHed and the buffered writes are applied in MULTI/EXEC,
// retrying when a watched key changed.
type RedisRepository struct {
	client *redis.Client
	opts   Options
}

func NewRedisRepository(ctx context.Context, url string, opts Options) (*RedisRepository, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %v", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %v", err)
	}
	return NewRedisRepositoryFromClient(client, opts), nil
}

func NewRedisRepositoryFromClient(client *redis.Client, opts Options) *RedisRepository {
	return &RedisRepository{
		client: client,
		opts:   opts,
	}
}

func (r *RedisRepository) Close(ctx context.Context) error {
	return r.client.Close()
}

func (r *RedisRepository) Get(ctx context.Context, collection, id string) (*Document, error) {
	return redisReader{cmd: r.client}.load(ctx, collection, id)
}

func (r *RedisRepository) Query(ctx context.Context, q Query) ([]*Document, error) {
	return queryPages(ctx, redisReader{cmd: r.client}, q, nil)
}

func (r *RedisRepository) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	attempts := r.opts.maxAttempts()
	for attempt := 1; attempt <= attempts; attempt++ {
		var changes []Change
		err := r.client.Watch(ctx, func(rtx *redis.Tx) error {
			btx := newBufferedTx(redisReader{cmd: rtx, watch: rtx})
			if err := fn(ctx, btx); err != nil {
				return err
			}
			changes = btx.writes.changes()
			if len(changes) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, c := range changes {
					key := redisDocKey(c.Collection, c.ID)
					if c.Deleted {
						pipe.Del(ctx, key)
						pipe.ZRem(ctx, redisIndexKey(c.Collection), c.ID)
						continue
					}
					b, err := json.Marshal(c.Document)
					if err != nil {
						return fmt.Errorf("failed to encode %s/%s: %w", c.Collection, c.ID, err)
					}
					pipe.Set(ctx, key, b, 0)
					pipe.ZAdd(ctx, redisIndexKey(c.Collection), redis.Z{
						Score:  float64(c.Document.CreatedAt.UnixMilli()),
						Member: c.ID,
					})
				}
				return nil
			})
			return err
		})
		if err == nil {
			r.opts.notify(ctx, changes)
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return &ErrConflict{Attempts: attempts, Err: redis.TxFailedErr}
}

// redisReader loads committed documents. Inside a transaction every key is watched before it is read.
type redisReader struct {
	cmd   redisReads
	watch *redis.Tx
}

type redisReads interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (r redisReader) watchKeys(ctx context.Context, keys ...string) error {
	if r.watch == nil || len(keys) == 0 {
		return nil
	}
	return r.watch.Watch(ctx, keys...).Err()
}

func (r redisReader) load(ctx context.Context, collection, id string) (*Document, error) {
	key := redisDocKey(collection, id)
	if err := r.watchKeys(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", key, err)
	}
	b, err := r.cmd.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &ErrNotFound{Collection: collection, ID: id}
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return &doc, nil
}

// scanPages loads the collection oldest first, redisScanPageSize documents at a time,
// until fn asks to stop. Redis orders by millisecond creation time, then id.
func (r redisReader) scanPages(ctx context.Context, collection string, fn func(page []*Document) (bool, error)) error {
	idx := redisIndexKey(collection)
	if err := r.watchKeys(ctx, idx); err != nil {
		return fmt.Errorf("failed to watch %s: %w", idx, err)
	}
	for start := int64(0); ; start += redisScanPageSize {
		ids, err := r.cmd.ZRange(ctx, idx, start, start+redisScanPageSize-1).Result()
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", collection, err)
		}
		if len(ids) == 0 {
			return nil
		}
		page, err := r.loadPage(ctx, collection, ids)
		if err != nil {
			return err
		}
		stop, err := fn(page)
		if err != nil || stop || len(ids) < redisScanPageSize {
			return err
		}
	}
}

func (r redisReader) loadPage(ctx context.Context, collection string, ids []string) ([]*Document, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisDocKey(collection, id)
	}
	if err := r.watchKeys(ctx, keys...); err != nil {
		return nil, fmt.Errorf("failed to watch %s documents: %w", collection, err)
	}
	vals, err := r.cmd.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", collection, err)
	}

	docs := make([]*Document, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Index entry without a document; the delete raced the read.
			continue
		}
		var doc Document
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, ids[i], err)
		}
		docs = append(docs, &doc)
	}
	return docs, nil
}
