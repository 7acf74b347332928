package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func seriesCount(vec *prometheus.CounterVec) int {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		vec.Collect(ch)
		close(ch)
	}()
	n := 0
	for range ch {
		n++
	}
	return n
}

func TestGinMiddleware_BoundsUnmatchedPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/chats/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	unmatched := HTTPRequestsTotal.WithLabelValues(http.MethodGet, UnmatchedPath, "404")
	routed := HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/chats/:id", "200")
	beforeUnmatched, beforeRouted := counterValue(t, unmatched), counterValue(t, routed)

	for _, target := range []string{"/random/a", "/random/b", "/chats/1", "/chats/2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	if got := counterValue(t, unmatched) - beforeUnmatched; got != 2 {
		t.Errorf("unmatched count = %v, want 2", got)
	}
	if got := counterValue(t, routed) - beforeRouted; got != 2 {
		t.Errorf("routed count = %v, want 2", got)
	}
	if n := seriesCount(HTTPRequestsTotal); n != 2 {
		t.Errorf("series = %d, want 2", n)
	}
}
