package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" maid", "catgirl", "maid", "", "  ", "catgirl "})
	assert.Equal(t, []string{"catgirl", "maid"}, got)
}

func TestNormalizeTags_CaseSensitive(t *testing.T) {
	got := NormalizeTags([]string{"Maid", "maid"})
	assert.Equal(t, []string{"Maid", "maid"}, got)
}

func TestCacheKey_TagOrderIndependent(t *testing.T) {
	a := &Filters{Tags: NormalizeTags([]string{"b", "a", "c"})}
	b := &Filters{Tags: NormalizeTags([]string{"c", "c", "a", "b"})}
	assert.Equal(t, a.CacheKey(), b.CacheKey())
}

func TestCacheKey_DistinguishesConstraints(t *testing.T) {
	base := &Filters{Tags: []string{"a"}}
	withWidth := &Filters{Tags: []string{"a"}, Width: &Range{Min: 100, Max: 200}}
	exact := &Filters{Tags: []string{"a"}, Width: &Range{Min: 100, Max: 100}}
	openEnded := &Filters{Tags: []string{"a"}, Width: &Range{Min: 100, Max: Unbounded}}

	keys := map[string]bool{
		base.CacheKey():      true,
		withWidth.CacheKey(): true,
		exact.CacheKey():     true,
		openEnded.CacheKey(): true,
	}
	assert.Len(t, keys, 4, "every distinct constraint set needs a distinct key")
}

func TestRangeContains(t *testing.T) {
	r := Range{Min: 100, Max: 200}
	assert.True(t, r.Contains(100))
	assert.True(t, r.Contains(200))
	assert.False(t, r.Contains(99))
	assert.False(t, r.Contains(201))

	exact := Exact(512)
	assert.True(t, exact.Contains(512))
	assert.False(t, exact.Contains(511))
}

func TestFiltersMatches(t *testing.T) {
	rec := &ImageRecord{
		Filename:  "abc.png",
		Tags:      []string{"catgirl", "maid"},
		Width:     1920,
		Height:    1080,
		SizeBytes: 500_000,
	}

	tests := []struct {
		name    string
		filters Filters
		want    bool
	}{
		{"empty matches everything", Filters{}, true},
		{"tag subset", Filters{Tags: []string{"maid"}}, true},
		{"all tags", Filters{Tags: []string{"catgirl", "maid"}}, true},
		{"missing tag", Filters{Tags: []string{"maid", "witch"}}, false},
		{"width in range", Filters{Width: &Range{Min: 1000, Max: 2000}}, true},
		{"width below", Filters{Width: &Range{Min: 2000, Max: Unbounded}}, false},
		{"size exact miss", Filters{Size: &Range{Min: 1, Max: 1}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filters.Matches(rec))
		})
	}
}
