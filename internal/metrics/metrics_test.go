package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	SessionsAccepted.Inc()
	DispatchTotal.WithLabelValues("Pub", "Sent").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "amq_session_accepted_total")
	assert.Contains(t, rec.Body.String(), "amq_broker_dispatch_total")
}
