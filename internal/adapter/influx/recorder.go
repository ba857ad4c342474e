// Package influx records point values and KPIs into InfluxDB for offline
// analysis of a run. Optional; write failures never affect the cycle.
package influx

import (
	"context"
	"fmt"
	"time"

	"boptest2bacnet/internal/config"
	"boptest2bacnet/internal/core/port"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

type Recorder struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	logger *zap.Logger
}

func NewRecorder(cfg config.InfluxConfig, logger *zap.Logger) (*Recorder, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Recorder{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger,
	}, nil
}

func (r *Recorder) RecordPointValue(equipment, point string, value float64, at time.Time) {
	p := influxdb2.NewPoint("point_value",
		map[string]string{"equipment": equipment, "point": point},
		map[string]interface{}{"value": value},
		at)
	r.writePoint(p, "point_value")
}

func (r *Recorder) RecordKPIs(kpis map[string]float64, at time.Time) {
	for name, value := range kpis {
		p := influxdb2.NewPoint("kpi",
			map[string]string{"name": name},
			map[string]interface{}{"value": value},
			at)
		r.writePoint(p, "kpi")
	}
}

func (r *Recorder) Close() {
	r.client.Close()
}

func (r *Recorder) writePoint(p *write.Point, measurement string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.write.WritePoint(ctx, p); err != nil {
		r.logger.Warn("influx write failed", zap.String("measurement", measurement), zap.Error(err))
	}
}

var _ port.TelemetrySink = (*Recorder)(nil)
