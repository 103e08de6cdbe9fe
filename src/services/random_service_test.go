package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/repositories/mock"
)

func seedIndex(t *testing.T, index *mock.MetadataIndex, n int, tags ...string) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := index.Insert(context.Background(), &models.ImageRecord{
			Filename:  fmt.Sprintf("img-%d.png", i),
			Tags:      tags,
			Width:     800,
			Height:    600,
			SizeBytes: 1000,
		})
		require.NoError(t, err)
	}
}

func newRandomService(index *mock.MetadataIndex) *RandomService {
	cache := NewResultCache(16, time.Minute)
	return NewRandomService(index, cache, NewSeededSampler(7))
}

func TestDraw_SecondQueryServedFromCache(t *testing.T) {
	index := mock.NewMetadataIndex()
	seedIndex(t, index, 10, "maid")
	rs := newRandomService(index)

	filters := &models.Filters{Tags: []string{"maid"}}
	_, _, err := rs.Draw(context.Background(), filters, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, index.QueryCount)

	// Same canonical filter, different tag spelling of the request
	_, _, err = rs.Draw(context.Background(), &models.Filters{Tags: models.NormalizeTags([]string{" maid", "maid"})}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, index.QueryCount, "second draw must not reach the index")
}

func TestDraw_Shortfall(t *testing.T) {
	index := mock.NewMetadataIndex()
	seedIndex(t, index, 3, "witch")
	rs := newRandomService(index)

	picked, shortfall, err := rs.Draw(context.Background(), &models.Filters{Tags: []string{"witch"}}, 5)
	require.NoError(t, err)
	assert.Len(t, picked, 3)
	assert.Equal(t, 2, shortfall)
}

func TestDraw_CountValidation(t *testing.T) {
	rs := newRandomService(mock.NewMetadataIndex())

	_, _, err := rs.Draw(context.Background(), &models.Filters{}, 0)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestDraw_IndexFailureIsUpstream(t *testing.T) {
	index := mock.NewMetadataIndex()
	index.QueryErr = errors.New("connection refused")
	rs := newRandomService(index)

	_, _, err := rs.Draw(context.Background(), &models.Filters{}, 1)
	require.Error(t, err)
	assert.Equal(t, KindUpstream, KindOf(err))
}

func TestDrawOne_EmptySetIsNotFound(t *testing.T) {
	index := mock.NewMetadataIndex()
	seedIndex(t, index, 5, "maid")
	rs := newRandomService(index)

	_, err := rs.DrawOne(context.Background(), &models.Filters{Tags: []string{"witch"}})
	require.Error(t, err)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestDrawOne_ReturnsMatch(t *testing.T) {
	index := mock.NewMetadataIndex()
	seedIndex(t, index, 5, "maid")
	rs := newRandomService(index)

	filename, err := rs.DrawOne(context.Background(), &models.Filters{Tags: []string{"maid"}})
	require.NoError(t, err)
	assert.Contains(t, filename, "img-")
}

func TestCandidates_EmptyResultCached(t *testing.T) {
	index := mock.NewMetadataIndex()
	rs := newRandomService(index)

	filters := &models.Filters{Tags: []string{"nothing"}}
	ids, err := rs.Candidates(context.Background(), filters)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = rs.Candidates(context.Background(), filters)
	require.NoError(t, err)
	assert.Equal(t, 1, index.QueryCount, "empty result sets are cached too")
}

func TestCandidates_FailedQueryNotCached(t *testing.T) {
	index := mock.NewMetadataIndex()
	index.QueryErr = errors.New("down")
	rs := newRandomService(index)

	filters := &models.Filters{}
	_, err := rs.Candidates(context.Background(), filters)
	require.Error(t, err)

	index.QueryErr = nil
	_, err = rs.Candidates(context.Background(), filters)
	require.NoError(t, err)
	assert.Equal(t, 2, index.QueryCount, "failure must not poison the cache")
}
