// Package mqtt publishes point values and KPIs observed by the sync loop
// to an MQTT broker. Optional; publishing failures never affect the cycle.
package mqtt

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"boptest2bacnet/internal/config"
	"boptest2bacnet/internal/core/port"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	payloadOnline  = "online"
	payloadOffline = "offline"
)

type Publisher struct {
	client    mqtt.Client
	baseTopic string
	logger    *zap.Logger

	// last payload per topic, to publish only on change
	last map[string]string
}

func NewPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port))
	opts.SetClientID(fmt.Sprintf("boptest2bacnet_%d", rand.IntN(1000)))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.WillEnabled = true
	opts.WillTopic = bridgeStateTopic(cfg.BaseTopic)
	opts.WillPayload = []byte(payloadOffline)
	opts.WillRetained = true
	opts.WillQos = 0

	p := &Publisher{
		client:    mqtt.NewClient(opts),
		baseTopic: cfg.BaseTopic,
		logger:    logger,
		last:      map[string]string{},
	}
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	p.client.Publish(bridgeStateTopic(cfg.BaseTopic), 0, true, payloadOnline)
	return p, nil
}

func (p *Publisher) RecordPointValue(equipment, point string, value float64, _ time.Time) {
	p.publishChanged(PointStateTopic(p.baseTopic, equipment, point), formatValue(value))
}

func (p *Publisher) RecordKPIs(kpis map[string]float64, _ time.Time) {
	for name, value := range kpis {
		p.publishChanged(KPIStateTopic(p.baseTopic, name), formatValue(value))
	}
}

func (p *Publisher) Close() {
	p.client.Publish(bridgeStateTopic(p.baseTopic), 0, true, payloadOffline)
	p.client.Disconnect(250)
}

func (p *Publisher) publishChanged(topic, payload string) {
	if p.last[topic] == payload {
		return
	}
	token := p.client.Publish(topic, 0, false, payload)
	if token.Wait() && token.Error() != nil {
		p.logger.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(token.Error()))
		return
	}
	p.last[topic] = payload
}

func bridgeStateTopic(baseTopic string) string {
	return baseTopic + "/bridge/state"
}

func PointStateTopic(baseTopic, equipment, point string) string {
	return fmt.Sprintf("%s/%s/%s/state", baseTopic, equipment, point)
}

func KPIStateTopic(baseTopic, name string) string {
	return fmt.Sprintf("%s/kpi/%s/state", baseTopic, name)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var _ port.TelemetrySink = (*Publisher)(nil)
