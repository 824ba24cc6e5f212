package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/foreman/internal/config"
	"github.com/kode4food/foreman/pkg/api"
	"github.com/kode4food/foreman/pkg/log"
)

// RedisStore keeps each series in a sorted set scored by the sample's
// timestamp in milliseconds, with a set indexing the series names
type RedisStore struct {
	client *redis.Client
	prefix string
}

const (
	minScore = "-inf"
	maxScore = "+inf"
)

// NewRedisStore connects a store to the configured Redis server
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreWithClient(client, cfg.Prefix)
}

// NewRedisStoreWithClient creates a store over an existing client
func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Ping checks that the server is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client's connections
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Add writes samples into their series
func (s *RedisStore) Add(
	ctx context.Context, samples ...*api.MetricSample,
) error {
	if len(samples) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, smp := range samples {
		data, err := json.Marshal(smp)
		if err != nil {
			return err
		}
		pipe.ZAdd(ctx, s.seriesKey(smp.Name), redis.Z{
			Score:  float64(smp.Timestamp.UnixMilli()),
			Member: data,
		})
		pipe.SAdd(ctx, s.namesKey(), smp.Name)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Query returns matching samples in time order. A positive Limit keeps
// the most recent ones
func (s *RedisStore) Query(
	ctx context.Context, q *api.MetricQuery,
) ([]*api.MetricSample, error) {
	names := []string{}
	if q != nil && q.Name != "" {
		names = append(names, q.Name)
	} else {
		all, err := s.Names(ctx)
		if err != nil {
			return nil, err
		}
		names = all
	}

	var res []*api.MetricSample
	for _, name := range names {
		samples, err := s.querySeries(ctx, name, q)
		if err != nil {
			return nil, err
		}
		res = append(res, samples...)
	}
	return limitSamples(sortSamples(res), q), nil
}

// Names returns the name of every series in the store
func (s *RedisStore) Names(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.namesKey()).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}

// Prune drops every sample taken before the given time and forgets the
// series left empty
func (s *RedisStore) Prune(ctx context.Context, before time.Time) error {
	names, err := s.Names(ctx)
	if err != nil {
		return err
	}
	limit := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	for _, name := range names {
		key := s.seriesKey(name)
		if err := s.client.ZRemRangeByScore(
			ctx, key, minScore, limit,
		).Err(); err != nil {
			return err
		}
		n, err := s.client.ZCard(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			if err := s.client.SRem(ctx, s.namesKey(), name).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *RedisStore) querySeries(
	ctx context.Context, name string, q *api.MetricQuery,
) ([]*api.MetricSample, error) {
	rng := &redis.ZRangeBy{Min: minScore, Max: maxScore}
	if q != nil {
		if !q.Since.IsZero() {
			rng.Min = strconv.FormatInt(q.Since.UnixMilli(), 10)
		}
		if !q.Until.IsZero() {
			rng.Max = strconv.FormatInt(q.Until.UnixMilli(), 10)
		}
	}

	var members []string
	var err error
	if q != nil && q.Limit > 0 {
		rng.Count = int64(q.Limit)
		members, err = s.client.ZRevRangeByScore(
			ctx, s.seriesKey(name), rng,
		).Result()
		slices.Reverse(members)
	} else {
		members, err = s.client.ZRangeByScore(
			ctx, s.seriesKey(name), rng,
		).Result()
	}
	if err != nil {
		return nil, err
	}

	res := make([]*api.MetricSample, 0, len(members))
	for _, m := range members {
		var smp api.MetricSample
		if err := json.Unmarshal([]byte(m), &smp); err != nil {
			slog.Warn("Skipping unreadable sample",
				slog.String("series", name),
				log.Error(err))
			continue
		}
		res = append(res, &smp)
	}
	return res, nil
}

func (s *RedisStore) seriesKey(name string) string {
	return s.key("metrics", name)
}

func (s *RedisStore) namesKey() string {
	return s.key("metrics")
}

func (s *RedisStore) key(parts ...string) string {
	res := s.prefix
	for _, p := range parts {
		if res != "" {
			res += ":"
		}
		res += p
	}
	return res
}
