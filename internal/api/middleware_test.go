package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newRequestIDRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})
	return r
}

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	r := newRequestIDRouter()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36) // UUID v4
	assert.Equal(t, id, w.Body.String())
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	r := newRequestIDRouter()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id-001")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "upstream-id-001", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "upstream-id-001", w.Body.String())
}
