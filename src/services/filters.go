package services

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/AlpinDale/waifu/src/models"
)

// buildRange validates one dimension's constraints and collapses them to a
// bound pair. Supplying an exact value together with a min or max on the same
// dimension is rejected outright rather than silently prioritized, so the
// outcome never depends on which field the caller happened to fill in.
func buildRange(name string, exact, min, max *int64) (*models.Range, error) {
	if exact != nil {
		if min != nil || max != nil {
			return nil, Invalid("%s: exact and min/max filters are mutually exclusive", name)
		}
		if *exact < 0 {
			return nil, Invalid("%s: value must not be negative", name)
		}
		r := models.Exact(*exact)
		return &r, nil
	}
	if min == nil && max == nil {
		return nil, nil
	}
	r := &models.Range{Min: 0, Max: models.Unbounded}
	if min != nil {
		if *min < 0 {
			return nil, Invalid("%s_min: value must not be negative", name)
		}
		r.Min = *min
	}
	if max != nil {
		if *max < 0 {
			return nil, Invalid("%s_max: value must not be negative", name)
		}
		r.Max = *max
	}
	if r.Min > r.Max {
		return nil, Invalid("%s: minimum %d exceeds maximum %d", name, r.Min, r.Max)
	}
	return r, nil
}

// BuildFilters normalizes a batch random request into a filter spec,
// validating every dimension. Tag order and duplicates in the input do not
// affect the resulting cache key.
func BuildFilters(req *models.BatchRandomRequest) (*models.Filters, error) {
	width, err := buildRange("width", req.Width, req.WidthMin, req.WidthMax)
	if err != nil {
		return nil, err
	}
	height, err := buildRange("height", req.Height, req.HeightMin, req.HeightMax)
	if err != nil {
		return nil, err
	}
	size, err := buildRange("size", req.Size, req.SizeMin, req.SizeMax)
	if err != nil {
		return nil, err
	}
	return &models.Filters{
		Tags:   models.NormalizeTags(req.Tags),
		Width:  width,
		Height: height,
		Size:   size,
	}, nil
}

// FiltersFromQuery parses the GET /random query string form: tags as a
// comma-separated list plus width/height/size exact or _min/_max parameters.
func FiltersFromQuery(values url.Values) (*models.Filters, error) {
	req := &models.BatchRandomRequest{}
	if tags := values.Get("tags"); tags != "" {
		req.Tags = strings.Split(tags, ",")
	}

	fields := map[string]**int64{
		"width":      &req.Width,
		"width_min":  &req.WidthMin,
		"width_max":  &req.WidthMax,
		"height":     &req.Height,
		"height_min": &req.HeightMin,
		"height_max": &req.HeightMax,
		"size":       &req.Size,
		"size_min":   &req.SizeMin,
		"size_max":   &req.SizeMax,
	}
	for name, dst := range fields {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, Invalid("%s: %q is not an integer", name, raw)
		}
		*dst = &v
	}
	return BuildFilters(req)
}
