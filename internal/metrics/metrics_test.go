package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestSessionObserver(t *testing.T) {
	created := value(t, SessionsCreatedTotal)
	active := value(t, SessionsActive)
	updates := value(t, ToolStateUpdatesTotal.WithLabelValues("cardgenerator"))

	obs := SessionObserver{}
	obs.SessionCreated()
	obs.SessionCreated()
	obs.SessionsExpired(1)
	obs.ToolStateUpdated("cardgenerator")

	require.Equal(t, created+2, value(t, SessionsCreatedTotal))
	require.Equal(t, active+1, value(t, SessionsActive))
	require.Equal(t, updates+1, value(t, ToolStateUpdatesTotal.WithLabelValues("cardgenerator")))
}

func TestProjectRecorder(t *testing.T) {
	ops := ProjectOperationsTotal.WithLabelValues("cardgenerator", "create", "ok")
	before := value(t, ops)

	ProjectRecorder{}.ProjectOperation("cardgenerator", "create", "ok")
	ProjectRecorder{}.PointerSyncFailed("cardgenerator", "delete")

	require.Equal(t, before+1, value(t, ops))
	require.GreaterOrEqual(t, value(t, PointerSyncFailuresTotal.WithLabelValues("cardgenerator", "delete")), float64(1))
	require.Equal(t, "404", StatusLabel(404))
}
