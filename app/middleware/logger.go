package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"comfygate/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/pretty"
)

// Logger logs one line per request, with the compressed body for POSTs.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var bodyStr string
		if c.Request.Method == http.MethodPost {
			bodyStr = getRequestBody(c)
		}

		c.Next()

		if c.Writer.Status() == http.StatusNotFound {
			return
		}

		msg := "[GIN] " + c.Request.Method + " " + c.Request.RequestURI
		if bodyStr != "" {
			logger.Infof("%s | %3d | %13v | %15s | body: %s",
				msg, c.Writer.Status(), time.Since(startTime), c.ClientIP(), bodyStr)
			return
		}
		logger.Infof("%s | %3d | %13v | %15s",
			msg, c.Writer.Status(), time.Since(startTime), c.ClientIP())
	}
}

// getRequestBody gets request body content
func getRequestBody(c *gin.Context) string {
	var bodyBytes []byte
	if c.Request.Body != nil {
		bodyBytes, _ = io.ReadAll(c.Request.Body)
		// Reset request body since reading it clears it
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	}
	return CompressBody(string(bodyBytes))
}

// CompressBody compresses JSON using pretty package
func CompressBody(body string) string {
	if len(body) == 0 {
		return ""
	}

	compressed := pretty.Ugly([]byte(body))
	if len(compressed) > 1000 {
		return string(compressed[:1000]) + "..."
	}
	return string(compressed)
}
