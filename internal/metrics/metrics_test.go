package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreExposed(t *testing.T) {
	before := testutil.ToFloat64(SummariesTotal.WithLabelValues(OutcomeSuccess))
	SummariesTotal.WithLabelValues(OutcomeSuccess).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SummariesTotal.WithLabelValues(OutcomeSuccess)))

	EditsTotal.WithLabelValues("final").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tldrbot_summary_invocations_total")
	assert.Contains(t, string(body), `tldrbot_summary_edits_total{kind="final"}`)
}
