package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler(t *testing.T) {
	m := New()
	m.MessagesRelayed.WithLabelValues("delivered").Inc()
	m.MessagesRelayed.WithLabelValues("delivered").Inc()
	m.ActiveRelays.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesRelayed.WithLabelValues("delivered")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `motherbot_messages_relayed_total{result="delivered"} 2`)
	assert.Contains(t, string(body), "motherbot_active_relays 3")
}

func TestNewUsesIsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
