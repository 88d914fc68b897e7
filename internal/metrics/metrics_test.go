package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Requests.WithLabelValues("OK").Inc()
	m.Charges.WithLabelValues("success").Add(2)
	m.LedgerRetries.Inc()
	m.RefundQueue.Set(3)
	m.ObserveStage("decode", time.Now().Add(-10*time.Millisecond))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("OK")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Charges.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LedgerRetries))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RefundQueue))

	count, err := testutil.GatherAndCount(reg, "rembg_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
