package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boptest2bacnet/internal/adapter/bacnet"
	"boptest2bacnet/internal/adapter/boptest"
	"boptest2bacnet/internal/adapter/influx"
	"boptest2bacnet/internal/adapter/mqtt"
	"boptest2bacnet/internal/config"
	"boptest2bacnet/internal/core/engine"
	"boptest2bacnet/internal/core/equipment"
	"boptest2bacnet/internal/core/port"
	"boptest2bacnet/internal/metrics"
	"boptest2bacnet/internal/server"
	"boptest2bacnet/internal/units"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, stopLoop context.CancelFunc, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// A started cycle runs to completion; only the loop's pacing wait is
	// interrupted.
	stopLoop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	})))

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	ctx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	conv := units.NewRegistry()

	sim := boptest.NewClient(cfg.Simulator.BaseURL, time.Duration(cfg.Simulator.TimeoutMillis)*time.Millisecond, logger)
	startTime, err := cfg.Simulator.StartTimeUnix()
	if err != nil {
		logger.Fatal("invalid scenario start time", zap.Error(err))
	}
	if err := bootstrapScenario(ctx, sim, cfg.Simulator, startTime, logger); err != nil {
		logger.Fatal("scenario bootstrap failed", zap.Error(err))
	}

	registry, err := equipment.LoadDirectory(ctx, cfg.EquipmentDir, deviceClientProvider(cfg, logger), conv, logger)
	if err != nil {
		logger.Fatal("failed to load equipment", zap.Error(err))
	}
	if registry.PointCount() == 0 {
		logger.Warn("no points loaded, nothing will be synchronized")
	}
	warnUnknownKeys(ctx, sim, registry, logger)
	if cfg.Simulator.Timezone != "" {
		registry.SyncClocks(ctx, startTime, cfg.Simulator.Timezone)
	}

	sinks, closeSinks := buildSinks(cfg, logger)
	defer closeSinks()

	promRegistry := prometheus.NewRegistry()
	loop := engine.NewLoop(sim, registry, cfg.Simulator.StepTime(), metrics.New(promRegistry), sinks, logger)
	go loop.Run(ctx)

	server := server.NewServer(*cfg, loop, registry, promRegistry)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, stopLoop, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")
}

// bootstrapScenario runs the mandatory startup sequence: select the
// scenario, initialize the run, then fix the step size. Each step is fatal
// on failure.
func bootstrapScenario(ctx context.Context, sim *boptest.Client, cfg config.SimulatorConfig, startTime int64, logger *zap.Logger) error {
	testID, err := sim.SelectScenario(ctx, cfg.Scenario)
	if err != nil {
		return err
	}
	if err := sim.Initialize(ctx, startTime, cfg.WarmupPeriodSeconds); err != nil {
		return err
	}
	if err := sim.SetStepSize(ctx, cfg.StepTimeSeconds); err != nil {
		return err
	}
	logger.Info("scenario ready",
		zap.String("scenario", cfg.Scenario),
		zap.String("testid", testID),
		zap.Float64("step_seconds", cfg.StepTimeSeconds))
	return nil
}

// warnUnknownKeys probes scenario metadata and flags configured simulator
// keys the scenario does not expose. Diagnostic only.
func warnUnknownKeys(ctx context.Context, sim *boptest.Client, registry *equipment.Registry, logger *zap.Logger) {
	meta, err := sim.Metadata(ctx)
	if err != nil {
		logger.Warn("could not fetch scenario metadata", zap.Error(err))
		return
	}
	for _, eq := range registry.Equipments() {
		for _, p := range eq.Points {
			key := p.SimulatorKey()
			if key == "" {
				continue
			}
			if _, ok := meta[key]; !ok {
				logger.Warn("configured simulator key unknown to scenario",
					zap.String("equipment", eq.Name),
					zap.String("point", p.Name()),
					zap.String("key", key))
			}
		}
	}
}

func deviceClientProvider(cfg *config.Config, logger *zap.Logger) port.DeviceClientProvider {
	return func(address string) (port.DeviceClient, error) {
		return bacnet.NewClient(bacnet.ClientConfig{
			Address:            address,
			Username:           cfg.Device.Username,
			Password:           cfg.Device.Password,
			Timeout:            time.Duration(cfg.Device.TimeoutMillis) * time.Millisecond,
			MaxWriteAttempts:   uint64(cfg.Device.MaxWriteAttempts),
			BackoffBase:        time.Duration(cfg.Device.BackoffBaseMillis) * time.Millisecond,
			BreakerMaxFailures: cfg.Device.BreakerMaxFailures,
			BreakerOpenFor:     time.Duration(cfg.Device.BreakerOpenMillis) * time.Millisecond,
			InsecureSkipVerify: cfg.Device.InsecureSkipVerify,
		}, logger), nil
	}
}

func buildSinks(cfg *config.Config, logger *zap.Logger) ([]port.TelemetrySink, func()) {
	var sinks []port.TelemetrySink
	if cfg.MQTT.Enable {
		pub, err := mqtt.NewPublisher(cfg.MQTT, logger)
		if err != nil {
			logger.Error("mqtt publisher unavailable, continuing without it", zap.Error(err))
		} else {
			sinks = append(sinks, pub)
		}
	}
	if cfg.Influx.Enable {
		rec, err := influx.NewRecorder(cfg.Influx, logger)
		if err != nil {
			logger.Error("influx recorder unavailable, continuing without it", zap.Error(err))
		} else {
			sinks = append(sinks, rec)
		}
	}
	return sinks, func() {
		for _, s := range sinks {
			s.Close()
		}
	}
}

func initConfig() (*config.Config, error) {

	// alias PORT => BRIDGE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("BRIDGE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("bridge")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	if cfg.MQTT.Enable {
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic
	}

	// check bounds
	if cfg.Simulator.BaseURL == "" {
		return nil, errors.New("config param simulator.base_url is required")
	}
	if cfg.Simulator.Scenario == "" {
		return nil, errors.New("config param simulator.scenario is required")
	}
	if cfg.Simulator.StartTime == "" {
		return nil, errors.New("config param simulator.start_time is required")
	}
	if cfg.Simulator.StepTimeSeconds <= 0 {
		return nil, errors.New("config param simulator.step_time_seconds should be > 0")
	}
	if cfg.Simulator.WarmupPeriodSeconds < 0 {
		return nil, errors.New("config param simulator.warmup_period_seconds should be >= 0")
	}
	if cfg.EquipmentDir == "" {
		return nil, errors.New("config param equipment_dir is required")
	}

	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("simulator.warmup_period_seconds", 0)
	viper.SetDefault("simulator.step_time_seconds", 5)
	viper.SetDefault("simulator.timeout_millis", 30000)
	viper.SetDefault("device.timeout_millis", 10000)
	viper.SetDefault("device.max_write_attempts", 3)
	viper.SetDefault("device.backoff_base_millis", 500)
	viper.SetDefault("device.breaker_max_failures", 5)
	viper.SetDefault("device.breaker_open_millis", 10000)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.base_topic", "boptest2bacnet")
	viper.SetDefault("influx.enable", false)
	viper.SetDefault("equipment_dir", "equipment")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.Device.Password = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	cfg.Influx.Token = "*redacted*"
	slog.Info("Using", "config", cfg)
}
