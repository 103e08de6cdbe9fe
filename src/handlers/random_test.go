package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AlpinDale/waifu/src/middleware"
	"github.com/AlpinDale/waifu/src/models"
	"github.com/AlpinDale/waifu/src/repositories/mock"
	"github.com/AlpinDale/waifu/src/services"
)

type randomFixture struct {
	router *gin.Engine
	index  *mock.MetadataIndex
	key    *models.ApiKey
}

// withKey fakes the auth middleware by planting a resolved key record.
func withKey(key *models.ApiKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ApiKeyContextKey, key)
		c.Next()
	}
}

func setupRandom(t *testing.T, key *models.ApiKey) *randomFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	index := mock.NewMetadataIndex()
	cache := services.NewResultCache(16, time.Minute)
	random := services.NewRandomService(index, cache, services.NewSeededSampler(11))
	images, err := services.NewImageService(index, t.TempDir(), "http://test/images")
	if err != nil {
		t.Fatalf("failed to create image service: %v", err)
	}

	handler := NewRandomHandler(random, images)
	router := gin.New()
	router.GET("/random", withKey(key), handler.HandleRandom)
	router.POST("/random", withKey(key), handler.HandleBatchRandom)

	return &randomFixture{router: router, index: index, key: key}
}

func (f *randomFixture) seed(t *testing.T, n int, tags ...string) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := f.index.Insert(context.Background(), &models.ImageRecord{
			Filename:  fmt.Sprintf("img-%d.png", i),
			Tags:      tags,
			Width:     800,
			Height:    600,
			SizeBytes: 1000,
		})
		if err != nil {
			t.Fatalf("failed to seed index: %v", err)
		}
	}
}

func (f *randomFixture) postBatch(t *testing.T, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/random", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	return w
}

func unlimitedKey() *models.ApiKey {
	return &models.ApiKey{Key: "ak_test", Username: "alice", IsActive: true}
}

func TestHandleRandom_ReturnsMatch(t *testing.T) {
	f := setupRandom(t, unlimitedKey())
	f.seed(t, 5, "maid")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/random?tags=maid", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", w.Code, w.Body.String())
	}
	var resp models.ImageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Filename == "" {
		t.Error("expected a filename in the response")
	}
	if resp.URL != "http://test/images/"+resp.Filename {
		t.Errorf("unexpected url %s", resp.URL)
	}
}

func TestHandleRandom_NoMatchIs404(t *testing.T) {
	f := setupRandom(t, unlimitedKey())
	f.seed(t, 5, "maid")

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/random?tags=witch", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleRandom_BadFilterIs400(t *testing.T) {
	f := setupRandom(t, unlimitedKey())

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/random?width_min=200&width_max=100", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleBatchRandom_CeilingRejectedBeforeWork(t *testing.T) {
	maxBatch := 3
	key := unlimitedKey()
	key.MaxBatchSize = &maxBatch
	f := setupRandom(t, key)
	f.seed(t, 10, "maid")

	w := f.postBatch(t, models.BatchRandomRequest{Count: 4, Tags: []string{"maid"}})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d (body %s)", w.Code, w.Body.String())
	}
	if f.index.QueryCount != 0 {
		t.Errorf("ceiling violation must reject before any index query, got %d queries", f.index.QueryCount)
	}
}

func TestHandleBatchRandom_AtCeilingAllowed(t *testing.T) {
	maxBatch := 3
	key := unlimitedKey()
	key.MaxBatchSize = &maxBatch
	f := setupRandom(t, key)
	f.seed(t, 10, "maid")

	w := f.postBatch(t, models.BatchRandomRequest{Count: 3, Tags: []string{"maid"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", w.Code, w.Body.String())
	}
	var resp models.BatchImageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Successful != 3 || resp.Failed != 0 {
		t.Errorf("expected 3 successful, got %+v", resp)
	}
}

func TestHandleBatchRandom_AdminIgnoresCeiling(t *testing.T) {
	key := unlimitedKey()
	key.IsAdmin = true
	one := 1
	key.MaxBatchSize = &one
	f := setupRandom(t, key)
	f.seed(t, 10, "maid")

	w := f.postBatch(t, models.BatchRandomRequest{Count: 5, Tags: []string{"maid"}})

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 for admin key, got %d", w.Code)
	}
}

func TestHandleBatchRandom_Shortfall(t *testing.T) {
	f := setupRandom(t, unlimitedKey())
	f.seed(t, 3, "maid")

	w := f.postBatch(t, models.BatchRandomRequest{Count: 5, Tags: []string{"maid"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (body %s)", w.Code, w.Body.String())
	}
	var resp models.BatchImageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Shortfall != 2 {
		t.Errorf("expected shortfall 2, got %d", resp.Shortfall)
	}
	if resp.Successful != 3 {
		t.Errorf("expected 3 successful, got %d", resp.Successful)
	}
	if resp.Total != 5 {
		t.Errorf("expected total 5, got %d", resp.Total)
	}
}

func TestHandleBatchRandom_NoDuplicatesInDraw(t *testing.T) {
	f := setupRandom(t, unlimitedKey())
	f.seed(t, 10, "maid")

	w := f.postBatch(t, models.BatchRandomRequest{Count: 10, Tags: []string{"maid"}})

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp models.BatchImageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	seen := make(map[string]bool)
	for _, img := range resp.Images {
		if seen[img.Filename] {
			t.Errorf("duplicate %s in batch draw", img.Filename)
		}
		seen[img.Filename] = true
	}
}

func TestHandleBatchRandom_ZeroCountRejected(t *testing.T) {
	f := setupRandom(t, unlimitedKey())

	w := f.postBatch(t, map[string]any{"count": 0})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleBatchRandom_ExactRangeConflictRejected(t *testing.T) {
	f := setupRandom(t, unlimitedKey())
	f.seed(t, 5, "maid")

	w := f.postBatch(t, map[string]any{"count": 2, "width": 800, "width_min": 100})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}
