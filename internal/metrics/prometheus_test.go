package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.InvocationsTotal.WithLabelValues("event", "match", "ok").Inc()

	require.Contains(t, scrape(t, a), `matchers_executor_invocations_total{op="match",program="event",result="ok"} 1`)
	require.NotContains(t, scrape(t, b), "matchers_executor_invocations_total")
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.IndexerLastSlot.Set(42)

	require.Contains(t, scrape(t, c), "matchers_indexer_last_slot 42")
}

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestGetCollectorIsSingleton(t *testing.T) {
	require.Same(t, GetCollector(), GetCollector())
}
