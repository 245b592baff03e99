package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/internal/monitorconfig"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestLoadSet_PopulatesGauges(t *testing.T) {
	m := New()
	set := &monitorconfig.Set{
		Networks: []model.Network{{ID: "eth"}, {ID: "stellar"}},
		Triggers: []model.Trigger{{ID: "t1"}},
		Monitors: []model.Monitor{
			{Name: "a", Networks: []string{"eth"}, Addresses: []model.MonitorAddress{{Address: "0x1"}}},
			{Name: "b", Paused: true, Networks: []string{"eth"}},
			{Name: "c", Networks: []string{"stellar"}, Addresses: []model.MonitorAddress{{Address: "0x1"}, {Address: "0x2"}}},
		},
	}

	m.LoadSet(set)

	assert.Equal(t, float64(3), gaugeValue(t, m.MonitorsTotal))
	assert.Equal(t, float64(2), gaugeValue(t, m.MonitorsActive))
	assert.Equal(t, float64(1), gaugeValue(t, m.TriggersTotal))
	assert.Equal(t, float64(2), gaugeValue(t, m.ContractsMonitored))
	assert.Equal(t, float64(2), gaugeValue(t, m.NetworksMonitored))
}

func TestServer_HealthAndMetricsEndpoints(t *testing.T) {
	m := New()
	srv := NewServer("127.0.0.1:0", m, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec2 := httptest.NewRecorder()
	srv.http.Handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}
