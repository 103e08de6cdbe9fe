package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AlpinDale/waifu/src/services"
)

// respondError maps an engine error kind to a transport status. Unknown
// errors become a 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	var status int
	switch services.KindOf(err) {
	case services.KindUnauthorized:
		status = http.StatusUnauthorized
	case services.KindRateLimited:
		status = http.StatusTooManyRequests
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindAlreadyExists:
		status = http.StatusConflict
	case services.KindUpstream:
		status = http.StatusBadGateway
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
