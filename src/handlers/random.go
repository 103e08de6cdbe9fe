package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/AlpinDale/waifu/src/middleware"
	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/services"
)

// RandomHandler serves filtered random selection requests.
type RandomHandler struct {
	random *services.RandomService
	images *services.ImageService
}

// NewRandomHandler creates a new random selection handler.
func NewRandomHandler(random *services.RandomService, images *services.ImageService) *RandomHandler {
	return &RandomHandler{random: random, images: images}
}

// HandleRandom returns one uniformly random image matching the query
// filters.
func (rh *RandomHandler) HandleRandom(c *gin.Context) {
	filters, err := services.FiltersFromQuery(c.Request.URL.Query())
	if err != nil {
		respondError(c, err)
		return
	}

	filename, err := rh.random.DrawOne(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	rec, err := rh.images.GetImage(c.Request.Context(), filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rh.images.Response(rec))
}

// HandleBatchRandom draws count distinct random images under the request's
// filters. The count is validated against the key's batch ceiling before
// any work happens; within an admitted batch, one image's metadata failure
// does not abort the rest.
func (rh *RandomHandler) HandleBatchRandom(c *gin.Context) {
	var req models.BatchRandomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.Invalid("invalid request body: %v", err))
		return
	}

	key := middleware.KeyFromContext(c)
	if key == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
		return
	}
	if !key.AllowsBatch(req.Count) {
		respondError(c, services.Invalid(
			"batch size %d exceeds the key's maximum of %d", req.Count, *key.MaxBatchSize))
		return
	}

	filters, err := services.BuildFilters(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	picked, shortfall, err := rh.random.Draw(c.Request.Context(), filters, req.Count)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := models.BatchImageResponse{
		Images:    make([]models.ImageResponse, 0, len(picked)),
		Total:     req.Count,
		Shortfall: shortfall,
		Errors:    []string{},
	}
	for _, filename := range picked {
		rec, err := rh.images.GetImage(c.Request.Context(), filename)
		if err != nil {
			resp.Failed++
			resp.Errors = append(resp.Errors, fmt.Sprintf("%s: %v", filename, err))
			log.Warn().Str("filename", filename).Err(err).Msg("failed to load sampled image")
			continue
		}
		resp.Successful++
		resp.Images = append(resp.Images, rh.images.Response(rec))
	}
	c.JSON(http.StatusOK, resp)
}
