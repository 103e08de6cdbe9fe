package models

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Unbounded is the sentinel for an absent upper bound.
const Unbounded int64 = math.MaxInt64

// Range is an inclusive [Min, Max] bound pair. Exact constraints collapse to
// (v, v); open-ended constraints use 0 and Unbounded as sentinels.
type Range struct {
	Min int64
	Max int64
}

// Exact builds the (v, v) range for an exact-value constraint.
func Exact(v int64) Range { return Range{Min: v, Max: v} }

// Contains reports whether v falls within the range, inclusive.
func (r Range) Contains(v int64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	if r.Max == Unbounded {
		return fmt.Sprintf("%d-", r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// Filters is a normalized filter specification: tags are sorted and
// deduplicated, dimension constraints are collapsed to bound pairs. Two
// semantically identical filter sets always produce the same CacheKey.
type Filters struct {
	Tags   []string
	Width  *Range
	Height *Range
	Size   *Range
}

// NormalizeTags trims, drops empties, sorts and deduplicates. Matching is
// case-sensitive, so no case folding happens here.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Empty reports whether the filter set constrains nothing.
func (f *Filters) Empty() bool {
	return len(f.Tags) == 0 && f.Width == nil && f.Height == nil && f.Size == nil
}

// CacheKey renders the canonical form used to key the result cache.
func (f *Filters) CacheKey() string {
	var b strings.Builder
	b.WriteString("tags=")
	b.WriteString(strings.Join(f.Tags, ","))
	for _, dim := range []struct {
		name string
		r    *Range
	}{{"w", f.Width}, {"h", f.Height}, {"s", f.Size}} {
		b.WriteByte(';')
		b.WriteString(dim.name)
		b.WriteByte('=')
		if dim.r == nil {
			b.WriteByte('*')
		} else {
			b.WriteString(dim.r.String())
		}
	}
	return b.String()
}

// Matches reports whether a record satisfies the filters: every tag must be
// present on the record and each constrained dimension must fall within its
// bound pair. No partial or fuzzy matching.
func (f *Filters) Matches(rec *ImageRecord) bool {
	for _, want := range f.Tags {
		if !slices.Contains(rec.Tags, want) {
			return false
		}
	}
	if f.Width != nil && !f.Width.Contains(int64(rec.Width)) {
		return false
	}
	if f.Height != nil && !f.Height.Contains(int64(rec.Height)) {
		return false
	}
	if f.Size != nil && !f.Size.Contains(rec.SizeBytes) {
		return false
	}
	return true
}
