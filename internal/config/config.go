// Package config loads daemon settings from an optional YAML file, an
// optional .env file and REST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/rest-monitor/internal/logic"
	"github.com/sweeney/rest-monitor/internal/mqtt"
)

type Config struct {
	VehicleID        string          `yaml:"vehicle_id"`
	VoltageThreshold float64         `yaml:"voltage_threshold"`
	Heartbeat        time.Duration   `yaml:"heartbeat"`
	Window           WindowConfig    `yaml:"window"`
	MQTT             MQTTConfig      `yaml:"mqtt"`
	HTTP             HTTPConfig      `yaml:"http"`
	History          HistoryConfig   `yaml:"history"`
	Dashboard        DashboardConfig `yaml:"dashboard"`
}

// WindowConfig limits monitoring to a time-of-day range. From and To are
// "15:04" or "15:04:05"; Timezone is an IANA name or "Local".
type WindowConfig struct {
	Enabled  bool   `yaml:"enabled"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Timezone string `yaml:"timezone"`
}

type MQTTConfig struct {
	Broker         string `yaml:"broker"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TelemetryTopic string `yaml:"telemetry_topic"`
	CycleTopic     string `yaml:"cycle_topic"`
	SystemTopic    string `yaml:"system_topic"`
	OutboxSize     int    `yaml:"outbox_size"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

// HistoryConfig enables the Postgres archive when DatabaseURL is set.
type HistoryConfig struct {
	DatabaseURL string `yaml:"database_url"`
}

// DashboardConfig enables the Redis cache when Addr is set.
type DashboardConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		VehicleID:        "vehicle",
		VoltageThreshold: logic.DefaultVoltageThreshold,
		Heartbeat:        15 * time.Minute,
		Window:           WindowConfig{Timezone: "Local"},
		MQTT: MQTTConfig{
			Broker:         "tcp://localhost:1883",
			TelemetryTopic: mqtt.DefaultTelemetryTopic,
			CycleTopic:     mqtt.DefaultCycleTopic,
			SystemTopic:    mqtt.DefaultSystemTopic,
			OutboxSize:     100,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

// Load starts from Default, then reads path (skipped when empty), then .env
// and the environment, then applies overrides in order. Later sources win.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	for _, o := range overrides {
		o(&cfg)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.VehicleID = getEnv("REST_VEHICLE_ID", c.VehicleID)
	c.MQTT.Broker = getEnv("REST_MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("REST_MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("REST_MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("REST_MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.TelemetryTopic = getEnv("REST_TELEMETRY_TOPIC", c.MQTT.TelemetryTopic)
	c.HTTP.Addr = getEnv("REST_HTTP_ADDR", c.HTTP.Addr)
	c.Window.From = getEnv("REST_WINDOW_FROM", c.Window.From)
	c.Window.To = getEnv("REST_WINDOW_TO", c.Window.To)
	c.Window.Timezone = getEnv("REST_TIMEZONE", c.Window.Timezone)
	c.History.DatabaseURL = getEnv("REST_DATABASE_URL", c.History.DatabaseURL)
	c.Dashboard.Addr = getEnv("REST_REDIS_ADDR", c.Dashboard.Addr)
	c.Dashboard.Password = getEnv("REST_REDIS_PASSWORD", c.Dashboard.Password)

	var err error
	if c.Window.Enabled, err = getEnvBool("REST_WINDOW_ENABLED", c.Window.Enabled); err != nil {
		return err
	}
	if c.VoltageThreshold, err = getEnvFloat("REST_VOLTAGE_THRESHOLD", c.VoltageThreshold); err != nil {
		return err
	}
	if c.Heartbeat, err = getEnvDuration("REST_HEARTBEAT", c.Heartbeat); err != nil {
		return err
	}
	if c.Dashboard.DB, err = getEnvInt("REST_REDIS_DB", c.Dashboard.DB); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills settings derived from others.
func (c *Config) applyDefaults() {
	if c.VehicleID == "" {
		c.VehicleID = "vehicle"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "rest-monitor-" + c.VehicleID
	}
	if c.Window.Timezone == "" {
		c.Window.Timezone = "Local"
	}
}

func (c *Config) validate() error {
	if c.VoltageThreshold <= 0 {
		return fmt.Errorf("voltage_threshold must be positive")
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required")
	}
	if c.MQTT.TelemetryTopic == "" {
		return fmt.Errorf("mqtt.telemetry_topic is required")
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must not be negative")
	}
	if c.MQTT.OutboxSize < 0 {
		return fmt.Errorf("mqtt.outbox_size must not be negative")
	}
	if _, err := c.MonitorWindow(); err != nil {
		return err
	}
	return nil
}

// MonitorWindow builds the monitoring window. A disabled window ignores From
// and To, but a timezone must still resolve.
func (c *Config) MonitorWindow() (logic.Window, error) {
	loc, err := time.LoadLocation(c.Window.Timezone)
	if err != nil {
		return logic.Window{}, fmt.Errorf("window.timezone: %w", err)
	}
	w := logic.Window{Enabled: c.Window.Enabled, Location: loc}
	if !w.Enabled {
		return w, nil
	}

	if w.From, err = logic.ParseTimeOfDay(c.Window.From); err != nil {
		return logic.Window{}, fmt.Errorf("window.from: %w", err)
	}
	if w.To, err = logic.ParseTimeOfDay(c.Window.To); err != nil {
		return logic.Window{}, fmt.Errorf("window.to: %w", err)
	}
	return w, nil
}

// MQTTOptions converts the mqtt section to client options.
func (c *Config) MQTTOptions() mqtt.Options {
	return mqtt.Options{
		Broker:         c.MQTT.Broker,
		ClientID:       c.MQTT.ClientID,
		Username:       c.MQTT.Username,
		Password:       c.MQTT.Password,
		VehicleID:      c.VehicleID,
		TelemetryTopic: c.MQTT.TelemetryTopic,
		CycleTopic:     c.MQTT.CycleTopic,
		SystemTopic:    c.MQTT.SystemTopic,
		OutboxSize:     c.MQTT.OutboxSize,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
