package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AlpinDale/waifu/src/logging"
	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/repositories"
)

// RandomService evaluates filter specs against the metadata index and draws
// uniform random samples from the matching set. Candidate sequences for hot
// filter combinations are served from the result cache; no cache or limiter
// lock is held while the index query runs.
type RandomService struct {
	index   repositories.MetadataIndex
	cache   *ResultCache
	sampler *Sampler
	log     zerolog.Logger
}

// NewRandomService wires the selection engine.
func NewRandomService(index repositories.MetadataIndex, cache *ResultCache, sampler *Sampler) *RandomService {
	return &RandomService{
		index:   index,
		cache:   cache,
		sampler: sampler,
		log:     logging.NewLogger("random"),
	}
}

// Candidates returns the filenames matching a normalized filter spec,
// consulting the cache first. An empty result is valid and is cached like
// any other.
func (rs *RandomService) Candidates(ctx context.Context, filters *models.Filters) ([]string, error) {
	key := filters.CacheKey()
	if ids, ok := rs.cache.Get(key); ok {
		rs.log.Debug().Str("filter", key).Int("candidates", len(ids)).Msg("cache hit")
		return ids, nil
	}

	ids, err := rs.index.Query(ctx, filters)
	if err != nil {
		return nil, Upstream(err, "metadata index query failed")
	}
	rs.cache.Put(key, ids)
	rs.log.Debug().Str("filter", key).Int("candidates", len(ids)).Msg("cache miss")
	return ids, nil
}

// Draw samples count distinct filenames from the candidate set for the
// filters. Fewer matches than requested is not an error: all matches come
// back with the shortfall reported.
func (rs *RandomService) Draw(ctx context.Context, filters *models.Filters, count int) (picked []string, shortfall int, err error) {
	if count < 1 {
		return nil, 0, Invalid("count must be at least 1")
	}
	ids, err := rs.Candidates(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	picked, shortfall = rs.sampler.Sample(ids, count)
	return picked, shortfall, nil
}

// DrawOne samples a single filename; an empty candidate set is NotFound at
// this level because the caller asked for exactly one image.
func (rs *RandomService) DrawOne(ctx context.Context, filters *models.Filters) (string, error) {
	picked, _, err := rs.Draw(ctx, filters, 1)
	if err != nil {
		return "", err
	}
	if len(picked) == 0 {
		return "", NotFound("no images match the given filters")
	}
	return picked[0], nil
}
