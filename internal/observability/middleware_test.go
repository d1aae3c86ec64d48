package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/danmuck/meshboard/internal/testutil/testlog"
)

func TestRequestMiddlewareLabelsRouteTemplate(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	r.Use(RequestMetricsMiddleware())
	r.GET("/api/boards/:board/notes/:note/acks", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	route := "/api/boards/:board/notes/:note/acks"
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", route, "404"))
	req := httptest.NewRequest(http.MethodGet, "/api/boards/noteboard/notes/n-1/acks", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", route, "404")); got != before+1 {
		t.Fatalf("request counter=%v want %v", got, before+1)
	}
	line := buf.String()
	for _, want := range []string{`"level":"warn"`, `"board":"noteboard"`, `"note":"n-1"`, `"route":"/api/boards/:board/notes/:note/acks"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}

	before = testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))
	if got := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")); got != before+1 {
		t.Fatalf("unmatched counter=%v want %v", got, before+1)
	}
}
