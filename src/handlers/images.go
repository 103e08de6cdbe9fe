package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AlpinDale/waifu/src/middleware"
	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/services"
)

// ImageHandler serves ingestion, metadata, and tag management requests.
type ImageHandler struct {
	images    *services.ImageService
	imagesDir string
}

// NewImageHandler creates a new image handler. imagesDir is the directory
// stored files are served from.
func NewImageHandler(images *services.ImageService, imagesDir string) *ImageHandler {
	return &ImageHandler{images: images, imagesDir: imagesDir}
}

// HandleAddImage ingests a single image from a local path or remote URL.
func (ih *ImageHandler) HandleAddImage(c *gin.Context) {
	var req models.AddImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}

	rec, err := ih.images.AddImage(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ih.images.Response(rec))
}

// HandleBatchAdd ingests several images. The batch size is checked against
// the key's ceiling before any item is fetched; after that each item stands
// alone and partial success is a normal outcome.
func (ih *ImageHandler) HandleBatchAdd(c *gin.Context) {
	var req models.BatchAddImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}
	if len(req.Images) == 0 {
		respondError(c, services.Invalid("images list is empty"))
		return
	}

	key := middleware.KeyFromContext(c)
	if key == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}
	if !key.AllowsBatch(len(req.Images)) {
		respondError(c, services.Invalid(
			"batch size %d exceeds the key's maximum of %d", len(req.Images), *key.MaxBatchSize))
		return
	}

	resp := models.BatchImageResponse{
		Images: make([]models.ImageResponse, 0, len(req.Images)),
		Total:  len(req.Images),
		Errors: []string{},
	}
	for i := range req.Images {
		rec, err := ih.images.AddImage(c.Request.Context(), &req.Images[i])
		if err != nil {
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", req.Images[i].Path, err))
			continue
		}
		resp.Successful++
		resp.Images = append(resp.Images, ih.images.Response(rec))
	}
	c.JSON(http.StatusOK, resp)
}

// HandleUpload ingests a multipart file upload. Tags come from the "tags"
// form field as a comma-separated list.
func (ih *ImageHandler) HandleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, services.Invalid("missing file field: %v", err))
		return
	}
	if fileHeader.Size > services.MaxFileSize {
		respondError(c, services.Invalid(
			"file too large: %d bytes (max %d bytes)", fileHeader.Size, services.MaxFileSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, services.Invalid("unreadable upload: %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, services.MaxFileSize+1))
	if err != nil {
		respondError(c, services.Invalid("failed to read upload: %v", err))
		return
	}

	var tags []string
	if raw := c.PostForm("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}

	rec, err := ih.images.AddBytes(c.Request.Context(), data, tags)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ih.images.Response(rec))
}

// HandleGetImage returns one image's metadata.
func (ih *ImageHandler) HandleGetImage(c *gin.Context) {
	rec, err := ih.images.GetImage(c.Request.Context(), c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ih.images.Response(rec))
}

// HandleServeImage serves the stored file itself.
func (ih *ImageHandler) HandleServeImage(c *gin.Context) {
	// Base strips any path traversal from the parameter
	filename := filepath.Base(c.Param("filename"))
	path := filepath.Join(ih.imagesDir, filename)
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.File(path)
}

// HandleDeleteImage removes an image and its metadata.
func (ih *ImageHandler) HandleDeleteImage(c *gin.Context) {
	if err := ih.images.RemoveImage(c.Request.Context(), c.Param("filename")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// HandleAddTags attaches tags to an image.
func (ih *ImageHandler) HandleAddTags(c *gin.Context) {
	var req models.TagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}
	if err := ih.images.AddTags(c.Request.Context(), c.Param("filename"), req.Tags); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleRemoveTags detaches tags from an image.
func (ih *ImageHandler) HandleRemoveTags(c *gin.Context) {
	var req models.TagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}
	if err := ih.images.RemoveTags(c.Request.Context(), c.Param("filename"), req.Tags); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleAllTags returns every known tag with its image count.
func (ih *ImageHandler) HandleAllTags(c *gin.Context) {
	tags, err := ih.images.AllTags(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
