package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Agent    AgentConfig    `yaml:"agent"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	TelemetryTopicName     string `yaml:"telemetry_topic_name"`
	TelemetryConsumerGroup string `yaml:"telemetry_consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type AgentConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	ChannelURL string `yaml:"channel_url"`
	HTTPAddr   string `yaml:"http_addr"`

	OSRMBaseURL string `yaml:"osrm_base_url"` // пусто — офлайн-оценка маршрута

	GPSGatewayURL string  `yaml:"gps_gateway_url"` // пусто — фиксированная точка ниже
	DeviceLat     float64 `yaml:"device_lat"`
	DeviceLng     float64 `yaml:"device_lng"`

	TrackPollIntervalSeconds     int `yaml:"track_poll_interval_seconds"`
	LocationPublishPeriodSeconds int `yaml:"location_publish_period_seconds"`
	LocationStaleAfterSeconds    int `yaml:"location_stale_after_seconds"`

	ChannelMaxAttempts        int `yaml:"channel_max_attempts"`
	ChannelBackoffStepSeconds int `yaml:"channel_backoff_step_seconds"`
	ChannelBackoffMaxSeconds  int `yaml:"channel_backoff_max_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
