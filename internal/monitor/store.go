package monitor

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kode4food/foreman/pkg/api"
)

type (
	// Store keeps metric samples as named time series
	Store interface {
		Add(ctx context.Context, samples ...*api.MetricSample) error
		Query(
			ctx context.Context, q *api.MetricQuery,
		) ([]*api.MetricSample, error)
		Names(ctx context.Context) ([]string, error)
		Prune(ctx context.Context, before time.Time) error
	}

	// MemoryStore is a Store held entirely in process memory
	MemoryStore struct {
		series map[string][]*api.MetricSample
		mu     sync.RWMutex
	}
)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series: map[string][]*api.MetricSample{},
	}
}

// Add appends samples to their series, keeping each series in time order
func (s *MemoryStore) Add(_ context.Context, samples ...*api.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, smp := range samples {
		series := s.series[smp.Name]
		i, _ := slices.BinarySearchFunc(series, smp.Timestamp,
			func(e *api.MetricSample, t time.Time) int {
				if e.Timestamp.After(t) {
					return 1
				}
				return -1
			},
		)
		s.series[smp.Name] = slices.Insert(series, i, smp.Clone())
	}
	return nil
}

// Query returns matching samples in time order. A positive Limit keeps
// the most recent ones
func (s *MemoryStore) Query(
	_ context.Context, q *api.MetricQuery,
) ([]*api.MetricSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []*api.MetricSample
	for name, series := range s.series {
		if q != nil && q.Name != "" && q.Name != name {
			continue
		}
		for _, smp := range series {
			if q.Matches(smp) {
				res = append(res, smp.Clone())
			}
		}
	}
	return limitSamples(sortSamples(res), q), nil
}

// Names returns the name of every series in the store
func (s *MemoryStore) Names(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]string, 0, len(s.series))
	for name := range s.series {
		res = append(res, name)
	}
	slices.Sort(res)
	return res, nil
}

// Prune drops every sample taken before the given time
func (s *MemoryStore) Prune(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, series := range s.series {
		i := slices.IndexFunc(series, func(e *api.MetricSample) bool {
			return !e.Timestamp.Before(before)
		})
		switch i {
		case -1:
			delete(s.series, name)
		case 0:
		default:
			s.series[name] = slices.Clone(series[i:])
		}
	}
	return nil
}

func sortSamples(samples []*api.MetricSample) []*api.MetricSample {
	slices.SortStableFunc(samples, func(l, r *api.MetricSample) int {
		return cmp.Or(
			l.Timestamp.Compare(r.Timestamp),
			cmp.Compare(l.Name, r.Name),
		)
	})
	return samples
}

func limitSamples(
	samples []*api.MetricSample, q *api.MetricQuery,
) []*api.MetricSample {
	if q == nil || q.Limit <= 0 || len(samples) <= q.Limit {
		return samples
	}
	return samples[len(samples)-q.Limit:]
}
