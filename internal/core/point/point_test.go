package point

import (
	"context"
	"errors"
	"testing"

	"boptest2bacnet/internal/config"
	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/units"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func newTestPoint(t *testing.T, cfg config.PointRecord) Point {
	t.Helper()
	p, err := New(cfg, units.NewRegistry(), zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNewRejectsInvalidRecords(t *testing.T) {
	conv := units.NewRegistry()
	logger := zap.NewNop()

	cases := []struct {
		name string
		cfg  config.PointRecord
	}{
		{"missing name", config.PointRecord{ObjectType: "AnalogInput"}},
		{"unknown object type", config.PointRecord{Name: "P1", ObjectType: "MultiStateValue"}},
		{"binary input without threshold", config.PointRecord{Name: "P1", ObjectType: "BinaryInput", SimulatorKey: "k"}},
		{"binary value without threshold", config.PointRecord{Name: "P1", ObjectType: "BinaryValue", SimulatorKey: "k"}},
		{"analog output without override key", config.PointRecord{Name: "P1", ObjectType: "AnalogOutput", SimulatorKey: "k"}},
		{"binary output without simulator key", config.PointRecord{Name: "P1", ObjectType: "BinaryOutput", SimulatorOverrideKey: "k_u"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, conv, logger)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfig), "expected config error, got %v", err)
		})
	}
}

func TestNewSelectsKindFromObjectType(t *testing.T) {
	cases := []struct {
		cfg  config.PointRecord
		kind domain.PointKind
	}{
		{config.PointRecord{Name: "P1", ObjectType: "AnalogInput", SimulatorKey: "k"}, domain.KindAnalogInput},
		{config.PointRecord{Name: "P1", ObjectType: "analog-value", SimulatorKey: "k"}, domain.KindAnalogValue},
		{config.PointRecord{Name: "P1", ObjectType: "BinaryInput", SimulatorKey: "k", Threshold: floatPtr(0.5)}, domain.KindBinaryInput},
		{config.PointRecord{Name: "P1", ObjectType: "BinaryValue", SimulatorKey: "k", Threshold: floatPtr(0.5)}, domain.KindBinaryValue},
		{config.PointRecord{Name: "P1", ObjectType: "AnalogOutput", SimulatorKey: "k", SimulatorOverrideKey: "k_u"}, domain.KindAnalogOutput},
		{config.PointRecord{Name: "P1", ObjectType: "BinaryOutput", SimulatorKey: "k", SimulatorOverrideKey: "k_u"}, domain.KindBinaryOutput},
		{config.PointRecord{Name: "P1", ObjectType: "BinaryValue", Activate: true}, domain.KindActivation},
	}
	for _, tc := range cases {
		p := newTestPoint(t, tc.cfg)
		assert.Equal(t, tc.kind, p.Kind(), "object_type=%s activate=%v", tc.cfg.ObjectType, tc.cfg.Activate)
	}
}

func TestPendingSyncClearedOnlyByConfirmedWrite(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{Name: "ZoneTemp", ObjectType: "AnalogInput", SimulatorKey: "zone_temp"})
	p.AssignInstance(12)

	require.False(t, p.HasPendingSync())

	p.Ingest(21.5)
	require.True(t, p.HasPendingSync())

	// re-ingesting the same value does not clear the flag
	p.Ingest(21.5)
	require.True(t, p.HasPendingSync())

	p.MarkSynced()
	require.False(t, p.HasPendingSync())

	// unchanged value after a confirmed write stays clean
	p.Ingest(21.5)
	require.False(t, p.HasPendingSync())

	p.Ingest(22.0)
	require.True(t, p.HasPendingSync())
}

func TestAnalogInputBatchRequests(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{Name: "OaTemp", ObjectType: "AnalogInput", SimulatorKey: "oa_temp"})

	// unresolved instance produces no requests
	assert.Empty(t, p.BatchRequests())

	p.AssignInstance(7)

	// no value yet
	assert.Empty(t, p.BatchRequests())

	p.Ingest(18.25)
	reqs := p.BatchRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "POST", reqs[0].Method)
	assert.Equal(t, "/api/rest/v2/services/bacnet/local/objects/analog-inputs/7", reqs[0].URL)
	assert.Equal(t, map[string]any{"out-of-service": true}, reqs[0].Body)
	assert.Equal(t, map[string]any{"present-value": 18.25}, reqs[1].Body)
}

func TestAnalogValueWritePriority(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{Name: "SetPt", ObjectType: "AnalogValue", SimulatorKey: "setpoint"})
	p.AssignInstance(3)
	p.Ingest(20.0)

	reqs := p.BatchRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/rest/v2/services/bacnet/local/objects/analog-values/3/set-value-at", reqs[0].URL)
	assert.Equal(t, float64(domain.DefaultWritePriority), reqs[0].Body["priority"])
	assert.Equal(t, 20.0, reqs[0].Body["value"])

	p2 := newTestPoint(t, config.PointRecord{Name: "SetPt", ObjectType: "AnalogValue", SimulatorKey: "setpoint", Priority: intPtr(8)})
	p2.AssignInstance(3)
	p2.Ingest(20.0)
	reqs = p2.BatchRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 8.0, reqs[0].Body["priority"])
}

func TestAnalogUnitConversion(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{
		Name: "ZoneTemp", ObjectType: "AnalogInput", SimulatorKey: "zone_temp",
		Unit: "K", AlternateUnit: "degC",
	})
	p.AssignInstance(1)
	p.Ingest(293.15)

	v, ok := p.Value()
	require.True(t, ok)
	assert.InDelta(t, 20.0, v, 1e-9)
}

func TestAnalogConversionFailureRetainsPriorValue(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{
		Name: "Flow", ObjectType: "AnalogInput", SimulatorKey: "flow",
		Unit: "m3/s", AlternateUnit: "degC",
	})
	p.AssignInstance(1)

	p.Ingest(1.0)
	_, ok := p.Value()
	require.False(t, ok, "incompatible conversion must not store a value")

	// convert_to_alternate_units without an alternate unit is a config error
	// on every ingest
	p2 := newTestPoint(t, config.PointRecord{
		Name: "Flow", ObjectType: "AnalogInput", SimulatorKey: "flow",
		Unit: "m3/s", ConvertToAlternateUnits: true,
	})
	p2.AssignInstance(1)
	p2.Ingest(1.0)
	_, ok = p2.Value()
	require.False(t, ok)
	assert.False(t, p2.HasPendingSync())
}

func TestAnalogIngestRejectsNonNumeric(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{Name: "ZoneTemp", ObjectType: "AnalogInput", SimulatorKey: "zone_temp"})
	p.AssignInstance(1)

	p.Ingest("not-a-number")
	_, ok := p.Value()
	assert.False(t, ok)
	assert.False(t, p.HasPendingSync())

	// integer payloads are accepted
	p.Ingest(21)
	v, ok := p.Value()
	require.True(t, ok)
	assert.Equal(t, 21.0, v)
}

func TestBinaryThresholdIsStrict(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{
		Name: "FanStatus", ObjectType: "BinaryInput", SimulatorKey: "fan_status",
		Threshold: floatPtr(0.5),
	})
	p.AssignInstance(4)

	p.Ingest(0.5)
	v, ok := p.Value()
	require.True(t, ok)
	assert.Equal(t, 0.0, v, "value equal to threshold maps to inactive")

	p.Ingest(0.51)
	v, _ = p.Value()
	assert.Equal(t, 1.0, v)

	reqs := p.BatchRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, map[string]any{"out-of-service": true}, reqs[0].Body)
	assert.Equal(t, map[string]any{"present-value": true}, reqs[1].Body)
}

func TestBinaryValueSingleRequest(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{
		Name: "OccMode", ObjectType: "BinaryValue", SimulatorKey: "occ_mode",
		Threshold: floatPtr(0),
	})
	p.AssignInstance(9)
	p.Ingest(1.0)

	reqs := p.BatchRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/rest/v2/services/bacnet/local/objects/binary-values/9", reqs[0].URL)
	assert.Equal(t, map[string]any{"present-value": true}, reqs[0].Body)
}

func TestActivationForcesActiveOnce(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{Name: "SimActive", ObjectType: "BinaryValue", Activate: true})
	p.AssignInstance(2)

	p.Ingest(nil)
	require.True(t, p.HasPendingSync())
	v, ok := p.Value()
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	p.MarkSynced()
	p.Ingest(nil)
	assert.False(t, p.HasPendingSync(), "activation stays synced after the first confirmed write")

	reqs := p.BatchRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, map[string]any{"present-value": 1.0}, reqs[0].Body)
}

type fakeDevice struct {
	address string
	values  map[string]any
	err     error
}

func (d *fakeDevice) Address() string { return d.address }

func (d *fakeDevice) DiscoverEndpoints(context.Context) (map[string]domain.Endpoint, error) {
	return nil, nil
}

func (d *fakeDevice) InstanceNumber(string, domain.ObjectType) (int, bool) { return 0, false }

func (d *fakeDevice) PropertyValue(_ context.Context, objectType domain.ObjectType, instance int, property string) (any, error) {
	if d.err != nil {
		return nil, d.err
	}
	key := objectType.Kebab()
	return d.values[key], nil
}

func (d *fakeDevice) SubmitBatch(context.Context, []domain.BatchRequest) error { return nil }
func (d *fakeDevice) DisableNTP(context.Context) error                         { return nil }
func (d *fakeDevice) SetTimeAndZone(context.Context, int64, string) error      { return nil }

func TestAnalogOutputPayloadNormalizesPercent(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{
		Name: "DamperCmd", ObjectType: "AnalogOutput",
		SimulatorKey: "damper_pos", SimulatorOverrideKey: "damper_pos_activate",
	})
	p.AssignInstance(5)

	op, ok := p.(OutputPoint)
	require.True(t, ok)

	dev := &fakeDevice{values: map[string]any{"analog-output": 100.0}}
	payload := op.SimulatorPayload(context.Background(), dev)
	require.Len(t, payload, 2)
	assert.Equal(t, 1.0, payload["damper_pos"])
	assert.Equal(t, 1.0, payload["damper_pos_activate"])

	dev.values["analog-output"] = 37.5
	payload = op.SimulatorPayload(context.Background(), dev)
	assert.Equal(t, 0.375, payload["damper_pos"])
}

func TestAnalogOutputPayloadEmptyOnReadFailure(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{
		Name: "DamperCmd", ObjectType: "AnalogOutput",
		SimulatorKey: "damper_pos", SimulatorOverrideKey: "damper_pos_activate",
	})
	p.AssignInstance(5)
	op := p.(OutputPoint)

	dev := &fakeDevice{err: errors.New("read timeout")}
	assert.Empty(t, op.SimulatorPayload(context.Background(), dev))

	dev = &fakeDevice{values: map[string]any{"analog-output": "garbage"}}
	assert.Empty(t, op.SimulatorPayload(context.Background(), dev))
}

func TestBinaryOutputPayloadMapsDeviceStates(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{
		Name: "FanCmd", ObjectType: "BinaryOutput",
		SimulatorKey: "fan_cmd", SimulatorOverrideKey: "fan_cmd_activate",
	})
	p.AssignInstance(6)
	op := p.(OutputPoint)

	cases := []struct {
		raw  any
		want float64
	}{
		{"active", 1},
		{"inactive", 0},
		{true, 1},
		{false, 0},
		{1.0, 1},
		{0.0, 0},
	}
	for _, tc := range cases {
		dev := &fakeDevice{values: map[string]any{"binary-output": tc.raw}}
		payload := op.SimulatorPayload(context.Background(), dev)
		require.Len(t, payload, 2, "raw=%v", tc.raw)
		assert.Equal(t, tc.want, payload["fan_cmd"], "raw=%v", tc.raw)
		assert.Equal(t, 1.0, payload["fan_cmd_activate"])
	}

	dev := &fakeDevice{values: map[string]any{"binary-output": "unknown"}}
	assert.Empty(t, op.SimulatorPayload(context.Background(), dev))
}

func TestBinaryOutputIngestAcceptsOnlyZeroOrOne(t *testing.T) {
	p := newTestPoint(t, config.PointRecord{
		Name: "FanCmd", ObjectType: "BinaryOutput",
		SimulatorKey: "fan_cmd", SimulatorOverrideKey: "fan_cmd_activate",
	})
	p.AssignInstance(6)

	p.Ingest(0.7)
	_, ok := p.Value()
	assert.False(t, ok)

	p.Ingest(1.0)
	v, ok := p.Value()
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	assert.True(t, p.HasPendingSync())
}
