// Package config loads the firefinder YAML configuration, optional .env
// files and FIREFINDER_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Geocene/firefinder/internal/logic"
	"github.com/Geocene/firefinder/internal/preprocess"
)

// Environment variables that override file settings.
const (
	EnvMQTTBroker   = "FIREFINDER_MQTT_BROKER"
	EnvMQTTClientID = "FIREFINDER_MQTT_CLIENT_ID"
	EnvKafkaBrokers = "FIREFINDER_KAFKA_BROKERS"
	EnvKafkaTopic   = "FIREFINDER_KAFKA_TOPIC"
	EnvHTTPAddr     = "FIREFINDER_HTTP_ADDR"
	EnvStorePath    = "FIREFINDER_STORE_PATH"
)

// Config is the top-level configuration file.
type Config struct {
	// Detector is handed to logic.ParseParams; keys are the parameter names.
	Detector map[string]any `yaml:"detector"`
	// Sensors maps sensor type ids to "stove" or "ambient".
	Sensors map[int]string `yaml:"sensors"`
	// CorrectionSensors replaces the stove and ambient ids used when
	// ambient correction is on.
	CorrectionSensors map[int]string `yaml:"correction_sensors"`
	// Sentinel overrides the broken thermocouple value. Zero keeps the default.
	Sentinel   float64     `yaml:"sentinel"`
	NoSentinel bool        `yaml:"no_sentinel"`
	MQTT       MQTTConfig  `yaml:"mqtt"`
	Kafka      KafkaConfig `yaml:"kafka"`
	HTTP       HTTPConfig  `yaml:"http"`
	Store      StoreConfig `yaml:"store"`
}

// MQTTConfig configures the MQTT sink. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig configures the Kafka sink. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// HTTPConfig configures the status and detection server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig configures the SQLite result store. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Kafka: KafkaConfig{Topic: "firefinder.events"},
		HTTP:  HTTPConfig{Addr: ":8080"},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads a .env file into the process environment. With an empty
// name it tries ./.env and ignores its absence.
func LoadEnv(name string) error {
	if name == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(name); err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	return nil
}

// ApplyEnv overrides connection settings from FIREFINDER_* variables.
func (c *Config) ApplyEnv() {
	c.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvMQTTBroker); v != "" {
		c.MQTT.Broker = v
	}
	if v := getenv(EnvMQTTClientID); v != "" {
		c.MQTT.ClientID = v
	}
	if v := getenv(EnvKafkaBrokers); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv(EnvKafkaTopic); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
	if v := getenv(EnvStorePath); v != "" {
		c.Store.Path = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the sensor roles and detector parameters.
func (c *Config) Validate() error {
	if _, err := sensorRoles("sensors", c.Sensors); err != nil {
		return err
	}
	if _, err := sensorRoles("correction_sensors", c.CorrectionSensors); err != nil {
		return err
	}
	if _, err := c.Params(); err != nil {
		return err
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka: topic is required when brokers are set")
	}
	return nil
}

// Params returns the detector parameters, defaults filled in.
func (c *Config) Params() (logic.Params, error) {
	return logic.ParseParams(c.Detector)
}

// PrepareOptions returns preprocessor options for a run with the given
// correction setting.
func (c *Config) PrepareOptions(correction bool) (preprocess.Options, error) {
	opts := preprocess.DefaultOptions()
	opts.Correction = correction
	opts.NoSentinel = c.NoSentinel
	if c.Sentinel != 0 {
		opts.Sentinel = c.Sentinel
	}
	roles, err := sensorRoles("sensors", c.Sensors)
	if err != nil {
		return opts, err
	}
	if roles != nil {
		opts.Sensors = roles
	}
	roles, err = sensorRoles("correction_sensors", c.CorrectionSensors)
	if err != nil {
		return opts, err
	}
	if roles != nil {
		opts.CorrectionSensors = roles
	}
	return opts, nil
}

func sensorRoles(section string, sensors map[int]string) (map[int]logic.SensorRole, error) {
	if len(sensors) == 0 {
		return nil, nil
	}
	roles := make(map[int]logic.SensorRole, len(sensors))
	for id, name := range sensors {
		role := logic.SensorRole(strings.ToLower(strings.TrimSpace(name)))
		if role != logic.RoleStove && role != logic.RoleAmbient {
			return nil, fmt.Errorf("%s: id %d: unknown role %q", section, id, name)
		}
		roles[id] = role
	}
	return roles, nil
}
