package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Formats the catalog accepts; registered for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AlpinDale/waifu/src/logging"
	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/repositories"
)

const (
	// MaxFileSize caps both local and downloaded images
	MaxFileSize = 10 * 1024 * 1024

	downloadTimeout = 30 * time.Second
	maxRedirects    = 5
)

var allowedContentTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/x-ms-bmp",
	"binary/octet-stream",
}

// Loopback, RFC 1918 private ranges, and RFC 3927 link-local prefixes.
var blockedHostPatterns = []string{
	"localhost",
	"127.",
	"0.0.0.0",
	"10.",
	"172.16.", "172.17.", "172.18.", "172.19.", "172.20.", "172.21.",
	"192.168.",
	"169.254.",
}

// Cloud metadata endpoints.
var blockedHostnames = []string{
	"metadata.google.internal",
	"169.254.169.254",
	"metadata.azure.internal",
	"metadata.platformequinix.com",
}

var blockedPorts = map[int]bool{
	22: true, 23: true, 25: true, 445: true, 3306: true, 5432: true, 27017: true,
}

// imageSource is the capability behind the {local, url} ingestion variant:
// each implementation materializes the image as a temp file under destDir.
type imageSource interface {
	fetch(ctx context.Context, destDir string) (string, error)
}

type localSource struct {
	path string
}

func (s localSource) fetch(_ context.Context, destDir string) (string, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return "", Invalid("local file not found: %s", s.path)
	}
	if info.Size() > MaxFileSize {
		return "", Invalid("file too large: %d bytes (max %d bytes)", info.Size(), MaxFileSize)
	}

	src, err := os.Open(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer src.Close()

	tmpPath := filepath.Join(destDir, "temp_"+uuid.New().String())
	dst, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to copy %s: %w", s.path, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return tmpPath, nil
}

type remoteSource struct {
	url    string
	client *http.Client
}

func (s remoteSource) fetch(ctx context.Context, destDir string) (string, error) {
	parsed, err := validateURL(s.url)
	if err != nil {
		return "", err
	}
	if err := s.checkContentType(ctx, parsed); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", Invalid("failed to download %s: %v", s.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", Invalid("url returned status %d", resp.StatusCode)
	}

	tmpPath := filepath.Join(destDir, "temp_"+uuid.New().String())
	file, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	// Enforce the size cap while streaming; Content-Length alone is not
	// trustworthy.
	written, err := io.Copy(file, io.LimitReader(resp.Body, MaxFileSize+1))
	closeErr := file.Close()
	if err != nil || closeErr != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("download failed: %w", errors.Join(err, closeErr))
	}
	if written > MaxFileSize {
		os.Remove(tmpPath)
		return "", Invalid("file too large: exceeds %d bytes", MaxFileSize)
	}
	return tmpPath, nil
}

func (s remoteSource) checkContentType(ctx context.Context, u *url.URL) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Invalid("failed to reach %s: %v", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Invalid("url returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > MaxFileSize {
		return Invalid("file too large: %d bytes (max %d bytes)", resp.ContentLength, MaxFileSize)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		ct = strings.ToLower(ct)
		ok := false
		for _, allowed := range allowedContentTypes {
			if strings.Contains(ct, allowed) {
				ok = true
				break
			}
		}
		if !ok {
			return Invalid("unsupported content type: %s", ct)
		}
	}
	return nil
}

// validateURL rejects non-HTTP schemes and anything that could reach
// loopback, private networks, or cloud metadata services.
func validateURL(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, Invalid("invalid url: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, Invalid("only http(s) urls are supported")
	}

	host := parsed.Hostname()
	for _, pattern := range blockedHostPatterns {
		if strings.Contains(host, pattern) {
			return nil, Invalid("url contains blocked pattern: %s", pattern)
		}
	}
	for _, blocked := range blockedHostnames {
		if strings.EqualFold(host, blocked) {
			return nil, Invalid("url hostname is blocked: %s", blocked)
		}
	}
	if portStr := parsed.Port(); portStr != "" {
		var port int
		fmt.Sscanf(portStr, "%d", &port)
		if blockedPorts[port] {
			return nil, Invalid("port %d is not allowed", port)
		}
	}
	return parsed, nil
}

// ImageService ingests images into the catalog and manages their metadata.
type ImageService struct {
	index     repositories.MetadataIndex
	imagesDir string
	baseURL   string
	client    *http.Client
	log       zerolog.Logger
}

// NewImageService creates the ingestion service. baseURL is the public
// prefix images are served under, e.g. "http://host:8000/images".
func NewImageService(index repositories.MetadataIndex, imagesDir, baseURL string) (*ImageService, error) {
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	client := &http.Client{
		Timeout: downloadTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &ImageService{
		index:     index,
		imagesDir: imagesDir,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		log:       logging.NewLogger("images"),
	}, nil
}

// BaseURL returns the public prefix images are served under.
func (is *ImageService) BaseURL() string {
	return is.baseURL
}

func (is *ImageService) newSource(req *models.AddImageRequest) (imageSource, error) {
	switch req.Type {
	case models.SourceLocal:
		return localSource{path: req.Path}, nil
	case models.SourceURL:
		return remoteSource{url: req.Path, client: is.client}, nil
	default:
		return nil, Invalid("unknown source type %q", req.Type)
	}
}

// AddImage fetches an image via its source variant, validates format and
// dimensions, stores the file under a generated unique filename, and
// inserts the metadata record.
func (is *ImageService) AddImage(ctx context.Context, req *models.AddImageRequest) (*models.ImageRecord, error) {
	source, err := is.newSource(req)
	if err != nil {
		return nil, err
	}
	tmpPath, err := source.fetch(ctx, is.imagesDir)
	if err != nil {
		return nil, err
	}

	rec, err := is.ingest(ctx, tmpPath, req.Tags)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	is.log.Info().
		Str("filename", rec.Filename).
		Str("source", string(req.Type)).
		Int("width", rec.Width).
		Int("height", rec.Height).
		Int64("size_bytes", rec.SizeBytes).
		Msg("image added")
	return rec, nil
}

// AddBytes ingests raw uploaded image data (multipart uploads).
func (is *ImageService) AddBytes(ctx context.Context, data []byte, tags []string) (*models.ImageRecord, error) {
	if len(data) > MaxFileSize {
		return nil, Invalid("file too large: %d bytes (max %d bytes)", len(data), MaxFileSize)
	}
	tmpPath := filepath.Join(is.imagesDir, "temp_"+uuid.New().String())
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}
	rec, err := is.ingest(ctx, tmpPath, tags)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	is.log.Info().Str("filename", rec.Filename).Msg("image uploaded")
	return rec, nil
}

// ingest validates a fetched temp file, renames it into place, and records
// its metadata. The temp file is consumed on success.
func (is *ImageService) ingest(ctx context.Context, tmpPath string, tags []string) (*models.ImageRecord, error) {
	format, width, height, err := sniffImage(tmpPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat temp file: %w", err)
	}
	hash, err := hashFile(tmpPath)
	if err != nil {
		return nil, err
	}

	ext := format
	if format == "jpeg" {
		ext = "jpg"
	}
	filename := uuid.New().String() + "." + ext
	destPath := filepath.Join(is.imagesDir, filename)
	if err := os.Rename(tmpPath, destPath); err != nil {
		return nil, fmt.Errorf("failed to move image into place: %w", err)
	}

	now := time.Now().UTC()
	rec := &models.ImageRecord{
		Filename:   filename,
		Hash:       hash,
		Tags:       models.NormalizeTags(tags),
		Width:      width,
		Height:     height,
		SizeBytes:  info.Size(),
		Format:     strings.ToUpper(format),
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := is.index.Insert(ctx, rec); err != nil {
		os.Remove(destPath)
		if errors.Is(err, repositories.ErrConflict) {
			return nil, AlreadyExists("image %s already exists", filename)
		}
		return nil, Upstream(err, "failed to record image metadata")
	}
	return rec, nil
}

// GetImage returns one image's metadata.
func (is *ImageService) GetImage(ctx context.Context, filename string) (*models.ImageRecord, error) {
	rec, err := is.index.Get(ctx, filename)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, NotFound("image %s not found", filename)
		}
		return nil, Upstream(err, "failed to load image metadata")
	}
	return rec, nil
}

// RemoveImage deletes the metadata row and the file on disk.
func (is *ImageService) RemoveImage(ctx context.Context, filename string) error {
	if err := is.index.Delete(ctx, filename); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("image %s not found", filename)
		}
		return Upstream(err, "failed to delete image metadata")
	}
	path := filepath.Join(is.imagesDir, filepath.Base(filename))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		is.log.Warn().Str("filename", filename).Err(err).Msg("failed to remove image file")
	}
	is.log.Info().Str("filename", filename).Msg("image removed")
	return nil
}

// AddTags attaches tags to an image.
func (is *ImageService) AddTags(ctx context.Context, filename string, tags []string) error {
	if len(models.NormalizeTags(tags)) == 0 {
		return Invalid("at least one tag is required")
	}
	if err := is.index.AddTags(ctx, filename, tags); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("image %s not found", filename)
		}
		return Upstream(err, "failed to add tags")
	}
	return nil
}

// RemoveTags detaches tags from an image; tags it does not carry are
// ignored.
func (is *ImageService) RemoveTags(ctx context.Context, filename string, tags []string) error {
	if err := is.index.RemoveTags(ctx, filename, tags); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return NotFound("image %s not found", filename)
		}
		return Upstream(err, "failed to remove tags")
	}
	return nil
}

// AllTags returns every tag with its image count.
func (is *ImageService) AllTags(ctx context.Context) (map[string]int, error) {
	tags, err := is.index.AllTags(ctx)
	if err != nil {
		return nil, Upstream(err, "failed to list tags")
	}
	return tags, nil
}

// Response builds the public representation for a record.
func (is *ImageService) Response(rec *models.ImageRecord) models.ImageResponse {
	return rec.ToResponse(is.baseURL)
}

// sniffImage determines format and dimensions without decoding the full
// image.
func sniffImage(path string) (format string, width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, 0, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", 0, 0, Invalid("could not determine image format")
	}
	switch format {
	case "jpeg", "png", "gif", "webp", "bmp":
	default:
		return "", 0, 0, Invalid("unsupported image format: %s", format)
	}
	return format, cfg.Width, cfg.Height, nil
}

// hashFile computes the sha256 content fingerprint.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash image: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
