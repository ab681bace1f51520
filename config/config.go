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
	MatchBox MatchBoxConfig `yaml:"matchbox"`
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
	Host                      string `yaml:"host"`
	Port                      int    `yaml:"port"`
	RequesterCreatedTopicName string `yaml:"requester_created_topic_name"`
	MatchOutcomeTopicName     string `yaml:"match_outcome_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MatchBoxConfig struct {
	HTTPAddr                   string  `yaml:"http_addr"`
	KafkaConsumerGroup         string  `yaml:"kafka_consumer_group"`
	CurrentRequesterTTLSeconds int     `yaml:"current_requester_ttl_seconds"`
	HomeCountry                string  `yaml:"home_country"`
	IdealDistanceKm            float64 `yaml:"ideal_distance_km"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Retry backoff between matching attempts (optional). If not set,
	// defaults are 5/15/30/60 minutes with one minute of jitter.
	WorkerBackoff1Seconds int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds int `yaml:"worker_backoff_4_seconds"`
	WorkerJitterSeconds   int `yaml:"worker_jitter_seconds"`

	HelpdeskBaseURL string `yaml:"helpdesk_base_url"`
	HelpdeskMode    string `yaml:"helpdesk_mode"` // "desk" | "fake"
	HelpdeskToken   string `yaml:"helpdesk_token"`

	MailerBaseURL string `yaml:"mailer_base_url"`
	MailerMode    string `yaml:"mailer_mode"` // "rest" | "fake"
	MailerAPIKey  string `yaml:"mailer_api_key"`
	MailerFrom    string `yaml:"mailer_from"`
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
