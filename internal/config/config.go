package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel  zapcore.Level
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Device    DeviceConfig    `mapstructure:"device"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Influx    InfluxConfig    `mapstructure:"influx"`

	EquipmentDir string `mapstructure:"equipment_dir"`
	Port         uint   `mapstructure:"port"`
	HttpLog      bool   `mapstructure:"http_log"`
}

type SimulatorConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	Scenario            string  `mapstructure:"scenario"`
	StartTime           string  `mapstructure:"start_time"`
	Timezone            string  `mapstructure:"timezone"`
	WarmupPeriodSeconds float64 `mapstructure:"warmup_period_seconds"`
	StepTimeSeconds     float64 `mapstructure:"step_time_seconds"`
	TimeoutMillis       uint32  `mapstructure:"timeout_millis"`
}

type DeviceConfig struct {
	Username           string `mapstructure:"username"`
	Password           string `mapstructure:"password"`
	TimeoutMillis      uint32 `mapstructure:"timeout_millis"`
	MaxWriteAttempts   uint32 `mapstructure:"max_write_attempts"`
	BackoffBaseMillis  uint32 `mapstructure:"backoff_base_millis"`
	BreakerMaxFailures uint32 `mapstructure:"breaker_max_failures"`
	BreakerOpenMillis  uint32 `mapstructure:"breaker_open_millis"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type MQTTConfig struct {
	Enable    bool   `mapstructure:"enable"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	BaseTopic string `mapstructure:"base_topic"`
}

type InfluxConfig struct {
	Enable bool   `mapstructure:"enable"`
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

const startTimeLayout = "2006-01-02 15:04:05"

// StartTimeUnix parses the configured human-readable scenario start time
// in the configured timezone (UTC when none is set). A malformed time or
// timezone is a startup error.
func (c SimulatorConfig) StartTimeUnix() (int64, error) {
	loc := time.UTC
	if c.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(c.Timezone)
		if err != nil {
			return 0, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
	}
	t, err := time.ParseInLocation(startTimeLayout, c.StartTime, loc)
	if err != nil {
		return 0, fmt.Errorf("invalid start_time %q, expected %q: %w", c.StartTime, startTimeLayout, err)
	}
	return t.Unix(), nil
}

// StepTime returns the cycle period as a duration.
func (c SimulatorConfig) StepTime() time.Duration {
	return time.Duration(c.StepTimeSeconds * float64(time.Second))
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
