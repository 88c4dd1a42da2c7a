package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTick(t *testing.T) {
	captureTicksTotal.Reset()

	RecordTick(TickUploaded)
	RecordTick(TickUploaded)
	RecordTick(TickSkippedBusy)

	assert.Equal(t, 2.0, testutil.ToFloat64(captureTicksTotal.WithLabelValues(TickUploaded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(captureTicksTotal.WithLabelValues(TickSkippedBusy)))
}

func TestRecordSubmission(t *testing.T) {
	submissionsTotal.Reset()

	RecordSubmission("time_out", SubmitFailed)
	assert.Equal(t, 1.0, testutil.ToFloat64(submissionsTotal.WithLabelValues("time_out", SubmitFailed)))
}

func TestSessionsGauge(t *testing.T) {
	sessionsActive.Set(0)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(sessionsActive))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordAlert("warning")

	srv := httptest.NewServer(Handler(NewRegistry()))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "exstem_proctor_alerts_total"))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}
