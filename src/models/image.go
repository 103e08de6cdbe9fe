package models

import "time"

// SourceType distinguishes where an ingested image comes from.
type SourceType string

const (
	// SourceLocal ingests a file already present on the server's filesystem
	SourceLocal SourceType = "local"
	// SourceURL downloads the image from a remote HTTP(S) URL
	SourceURL SourceType = "url"
)

// ImageRecord is the metadata row for a stored image. Filename is globally
// unique; Hash is a sha256 content fingerprint used for duplicate detection
// but not enforced as unique.
type ImageRecord struct {
	Filename   string    `json:"filename"`
	Hash       string    `json:"hash"`
	Tags       []string  `json:"tags"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SizeBytes  int64     `json:"size_bytes"`
	Format     string    `json:"format"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ImageResponse is the public representation of an image, including the URL
// it can be fetched from.
type ImageResponse struct {
	URL        string    `json:"url"`
	Filename   string    `json:"filename"`
	Format     string    `json:"format"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	SizeBytes  int64     `json:"size_bytes"`
	Hash       string    `json:"hash"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ToResponse builds the public representation with the given base URL.
func (r *ImageRecord) ToResponse(baseURL string) ImageResponse {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return ImageResponse{
		URL:        baseURL + "/" + r.Filename,
		Filename:   r.Filename,
		Format:     r.Format,
		Width:      r.Width,
		Height:     r.Height,
		SizeBytes:  r.SizeBytes,
		Hash:       r.Hash,
		Tags:       tags,
		CreatedAt:  r.CreatedAt,
		ModifiedAt: r.ModifiedAt,
	}
}

// AddImageRequest adds a single image from a local path or a remote URL.
type AddImageRequest struct {
	Path string     `json:"path" binding:"required"`
	Type SourceType `json:"type" binding:"required"`
	Tags []string   `json:"tags"`
}

// BatchAddImageRequest adds several images in one call.
type BatchAddImageRequest struct {
	Images []AddImageRequest `json:"images" binding:"required"`
}

// BatchRandomRequest draws Count random images matching the filters.
type BatchRandomRequest struct {
	Count     int      `json:"count" binding:"required"`
	Tags      []string `json:"tags"`
	Width     *int64   `json:"width"`
	WidthMin  *int64   `json:"width_min"`
	WidthMax  *int64   `json:"width_max"`
	Height    *int64   `json:"height"`
	HeightMin *int64   `json:"height_min"`
	HeightMax *int64   `json:"height_max"`
	Size      *int64   `json:"size"`
	SizeMin   *int64   `json:"size_min"`
	SizeMax   *int64   `json:"size_max"`
}

// BatchImageResponse aggregates a batch outcome. Partial failure is reported
// here as data, not as a transport-level error.
type BatchImageResponse struct {
	Images     []ImageResponse `json:"images"`
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Shortfall  int             `json:"shortfall,omitempty"`
	Errors     []string        `json:"errors"`
}

// GenerateApiKeyRequest creates a new API key for a username.
type GenerateApiKeyRequest struct {
	Username          string `json:"username" binding:"required"`
	RequestsPerSecond *int   `json:"requests_per_second"`
	MaxBatchSize      *int   `json:"max_batch_size"`
}

// RemoveApiKeyRequest removes all key state for a username.
type RemoveApiKeyRequest struct {
	Username string `json:"username" binding:"required"`
}

// UpdateApiKeyRequest changes a key's rate limit. Nil clears the limit.
type UpdateApiKeyRequest struct {
	RequestsPerSecond *int `json:"requests_per_second"`
}

// UpdateApiKeyStatusRequest toggles a key's active flag.
type UpdateApiKeyStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// TagsRequest adds or removes tags on an image.
type TagsRequest struct {
	Tags []string `json:"tags" binding:"required"`
}
