package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"voeventdb/internal/apierror"

	"github.com/gin-gonic/gin"
)

// Envelope keys shared by every query endpoint.
const (
	KeyEndpoint    = "endpoint"
	KeyQuerystring = "querystring"
	KeyResult      = "result"
	KeyURL         = "url"
	KeyLimit       = "limit"
)

func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func envelope(c *gin.Context, result interface{}) gin.H {
	return gin.H{
		KeyEndpoint:    c.FullPath(),
		KeyQuerystring: c.Request.URL.Query(),
		KeyResult:      result,
		KeyURL:         requestURL(c),
	}
}

func respond(c *gin.Context, result interface{}) {
	c.JSON(http.StatusOK, envelope(c, result))
}

// writeError renders client errors with their own status; anything else is
// logged and reported as a 500 without internals.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	if apiErr, ok := apierror.As(err); ok {
		c.JSON(apiErr.Code, gin.H{"error": apiErr})
		return
	}
	logger.Error("request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": apierror.Error{
		Code:        http.StatusInternalServerError,
		Description: "Internal server error",
		Message:     "The request could not be completed.",
	}})
}

// ivornParam reads a catch-all ivorn path parameter.
func ivornParam(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("ivorn"), "/")
}
