package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCounters(t *testing.T) {
	m := NewManager(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

	m.FetchAttempt("core", "ok")
	m.FetchAttempt("core", "ok")
	m.FetchAttempt("search", "rate_limited")
	m.FetchRetry("server_error")
	m.CacheLookup("hit")
	m.CacheLookup("miss")
	m.CacheLookup("miss")
	m.Warning("partial_aggregation")
	m.ToolCall("get_user_events", "ok", 20*time.Millisecond)
	m.RateLimitWait(2 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetchAttempts.WithLabelValues("core", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchAttempts.WithLabelValues("search", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchRetries.WithLabelValues("server_error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fanoutWarnings.WithLabelValues("partial_aggregation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("get_user_events", "ok")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewManager()
	m.CacheLookup("hit")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "githubactivity_cache_lookups_total"))
}
