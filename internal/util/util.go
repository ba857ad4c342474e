package util

import (
	"boptest2bacnet/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Simulator: config.SimulatorConfig{
			BaseURL:             "http://localhost:80",
			Scenario:            "testcase1",
			StartTime:           "2021-01-01 00:00:00",
			WarmupPeriodSeconds: 0,
			StepTimeSeconds:     5,
			TimeoutMillis:       2000,
		},
		Device: config.DeviceConfig{
			Username:         "admin",
			Password:         "admin",
			TimeoutMillis:    2000,
			MaxWriteAttempts: 2,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "boptest2bacnet",
		},
		EquipmentDir: "testdata",
		Port:         8080,
	}
}
