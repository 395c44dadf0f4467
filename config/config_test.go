package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
kafka:
  host: "localhost"
  port: 9092
  telemetry_topic_name: "consignment.telemetry"
  telemetry_consumer_group: "courier-agent"
redis:
  host: "localhost"
  port: 6379
agent:
  api_base_url: "https://api.example.com"
  channel_url: "wss://api.example.com/ws"
  http_addr: ":8080"
  track_poll_interval_seconds: 5
  channel_max_attempts: 5
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "consignment.telemetry", cfg.Kafka.TelemetryTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "wss://api.example.com/ws", cfg.Agent.ChannelURL)
	require.Equal(t, 5, cfg.Agent.TrackPollIntervalSeconds)
	require.Zero(t, cfg.Agent.LocationStaleAfterSeconds, "unset keys stay zero")
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
