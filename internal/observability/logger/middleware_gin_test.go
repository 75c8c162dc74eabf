package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/guesthouse/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	var seenActor, seenCorrelation string
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core), MiddlewareConfig{}))
	r.GET("/api/bookings/:id", func(c *gin.Context) {
		seenActor = obscontext.ActorFromContext(c.Request.Context())
		seenCorrelation = obscontext.CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/1", nil)
	req.Header.Set("X-Request-Id", "req-1")
	req.Header.Set(ActorHeader, "frontdesk")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get("X-Request-Id"))
	assert.NotEmpty(t, w.Header().Get(CorrelationHeader))
	assert.Equal(t, w.Header().Get(CorrelationHeader), seenCorrelation)
	assert.Equal(t, "frontdesk", seenActor)

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "/api/bookings/:id", fields["route"])
		assert.Equal(t, int64(http.StatusOK), fields["status"])
		assert.Equal(t, "req-1", fields["request_id"])
	}
}
