package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/core/engine"
	"boptest2bacnet/internal/core/equipment"
	"boptest2bacnet/internal/core/port"
	"boptest2bacnet/internal/metrics"
	"boptest2bacnet/internal/units"
	"boptest2bacnet/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSimulator struct {
	payload map[string]any
}

func (s *fakeSimulator) SelectScenario(context.Context, string) (string, error) { return "t1", nil }
func (s *fakeSimulator) Initialize(context.Context, int64, float64) error       { return nil }
func (s *fakeSimulator) SetStepSize(context.Context, float64) error             { return nil }

func (s *fakeSimulator) Advance(context.Context, map[string]float64) (map[string]any, error) {
	return s.payload, nil
}

func (s *fakeSimulator) KPIs(context.Context) (map[string]any, error) {
	return map[string]any{}, nil
}

var _ port.SimulatorClient = (*fakeSimulator)(nil)

type fakeDevice struct {
	catalog map[string]domain.Endpoint
}

func (d *fakeDevice) Address() string { return "10.0.0.10" }

func (d *fakeDevice) DiscoverEndpoints(context.Context) (map[string]domain.Endpoint, error) {
	return d.catalog, nil
}

func (d *fakeDevice) InstanceNumber(objectName string, objectType domain.ObjectType) (int, bool) {
	ep, ok := d.catalog[objectName]
	if !ok || ep.ObjectType != objectType {
		return 0, false
	}
	return ep.Instance, true
}

func (d *fakeDevice) PropertyValue(context.Context, domain.ObjectType, int, string) (any, error) {
	return 50.0, nil
}

func (d *fakeDevice) SubmitBatch(context.Context, []domain.BatchRequest) error { return nil }
func (d *fakeDevice) DisableNTP(context.Context) error                         { return nil }
func (d *fakeDevice) SetTimeAndZone(context.Context, int64, string) error      { return nil }

var _ port.DeviceClient = (*fakeDevice)(nil)

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestEndpoints(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Simulator.StepTimeSeconds = 0.005
	cfg.EquipmentDir = t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(cfg.EquipmentDir, "ahu1.json"), []byte(`{
		"device_address": "10.0.0.10",
		"equipment_name": "AHU-1",
		"points": [
			{"name": "ZoneTemp", "object_type": "AnalogInput", "simulator_key": "zone_temp"}
		]
	}`), 0o644))

	dev := &fakeDevice{catalog: map[string]domain.Endpoint{
		"ZoneTemp": {ObjectName: "ZoneTemp", ObjectType: domain.ObjectTypeAnalogInput, Instance: 1},
	}}
	provider := func(string) (port.DeviceClient, error) { return dev, nil }
	registry, err := equipment.LoadDirectory(context.Background(), cfg.EquipmentDir, provider, units.NewRegistry(), zap.NewNop())
	require.NoError(t, err)

	promRegistry := prometheus.NewRegistry()
	sim := &fakeSimulator{payload: map[string]any{"zone_temp": 21.0}}
	loop := engine.NewLoop(sim, registry, cfg.Simulator.StepTime(), metrics.New(promRegistry), nil, zap.NewNop())

	srv := NewServer(cfg, loop, registry, promRegistry)

	// no cycle has completed yet
	rr := get(srv.Handler, "/healthcheck")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	require.Eventually(t, func() bool {
		return get(srv.Handler, "/healthcheck").Code == http.StatusOK
	}, 2*time.Second, 5*time.Millisecond)

	rr = get(srv.Handler, "/status")
	require.Equal(t, http.StatusOK, rr.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, cfg.Simulator.Scenario, status.Scenario)
	assert.Equal(t, 1, status.Equipments)
	assert.Equal(t, 1, status.Points)
	assert.GreaterOrEqual(t, status.Loop.Cycles, uint64(1))

	rr = get(srv.Handler, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "bridge_sync_cycles_total"))
}
