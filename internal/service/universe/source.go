package universe

import (
	"context"
	"time"

	"StockPipe/pkg/cache"
)

// Entry is one raw row from a universe source, before normalization.
type Entry struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Source lists the current universe.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]Entry, error)
}

// StaticSource serves a fixed symbol list from configuration.
type StaticSource struct {
	symbols []string
}

func NewStaticSource(symbols []string) *StaticSource {
	return &StaticSource{symbols: symbols}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Fetch(context.Context) ([]Entry, error) {
	out := make([]Entry, 0, len(s.symbols))
	for _, sym := range s.symbols {
		out = append(out, Entry{Symbol: sym})
	}
	return out, nil
}

// CachedSource keeps a source's last answer in a cache for ttl.
type CachedSource struct {
	src   Source
	cache cache.Service
	ttl   time.Duration
}

func NewCachedSource(src Source, c cache.Service, ttl time.Duration) *CachedSource {
	return &CachedSource{src: src, cache: c, ttl: ttl}
}

func (s *CachedSource) Name() string { return s.src.Name() }

func (s *CachedSource) Fetch(ctx context.Context) ([]Entry, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.GenerateKey("universe", s.src.Name()), s.ttl, s.src.Fetch)
}
