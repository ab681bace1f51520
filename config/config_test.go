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
  requester_created_topic_name: "requester.created"
  match_outcome_topic_name: "match.outcome"
redis:
  host: "localhost"
  port: 6379
matchbox:
  http_addr: ":8080"
  kafka_consumer_group: "match-api"
  current_requester_ttl_seconds: 600
  home_country: "BR"
  mailer_mode: "fake"
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "requester.created", cfg.Kafka.RequesterCreatedTopicName)
	require.Equal(t, "match.outcome", cfg.Kafka.MatchOutcomeTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.MatchBox.HTTPAddr)
	require.Equal(t, "BR", cfg.MatchBox.HomeCountry)
	require.Equal(t, "fake", cfg.MatchBox.MailerMode)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
