package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BridgeAid/MatchBox/config"
	"github.com/BridgeAid/MatchBox/internal/broker/kafka"
	"github.com/BridgeAid/MatchBox/internal/cache/rediscache"
	"github.com/BridgeAid/MatchBox/internal/flags"
	"github.com/BridgeAid/MatchBox/internal/integrations/mailer"
	mailerfake "github.com/BridgeAid/MatchBox/internal/integrations/mailer/fake"
	"github.com/BridgeAid/MatchBox/internal/integrations/mailer/resthttp"
	"github.com/BridgeAid/MatchBox/internal/integrations/ticketing"
	"github.com/BridgeAid/MatchBox/internal/integrations/ticketing/deskhttp"
	ticketfake "github.com/BridgeAid/MatchBox/internal/integrations/ticketing/fake"
	"github.com/BridgeAid/MatchBox/internal/services/matching"
	"github.com/BridgeAid/MatchBox/internal/storage/pgmatch"
)

type matchAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     matchAPIOpts
	svc      *matching.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapMatchAPI() *matchAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config, %v", err))
	}

	httpAddr := cfg.MatchBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.MatchBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "match-api"
	}
	createdTopic := cfg.Kafka.RequesterCreatedTopicName
	if createdTopic == "" {
		createdTopic = "requester.created"
	}
	outcomeTopic := cfg.Kafka.MatchOutcomeTopicName
	if outcomeTopic == "" {
		outcomeTopic = "match.outcome"
	}

	cacheTTL := time.Duration(cfg.MatchBox.CurrentRequesterTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	fp := flags.NewRedis(redisAddr)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, createdTopic, consumerGroup)

	svc := matching.New(st, newTicketingClient(cfg), newMailerClient(cfg), fp, producer, outcomeTopic).
		WithCreatedTopic(createdTopic).
		WithCache(rc, cacheTTL).
		WithHomeCountry(cfg.MatchBox.HomeCountry).
		WithIdealDistance(cfg.MatchBox.IdealDistanceKm).
		WithRetryPlanner(retryPlannerFromConfig(cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &matchAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: matchAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         createdTopic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func newTicketingClient(cfg *config.Config) ticketing.Client {
	if cfg.MatchBox.HelpdeskBaseURL != "" && cfg.MatchBox.HelpdeskMode == "desk" {
		return deskhttp.New(cfg.MatchBox.HelpdeskBaseURL, cfg.MatchBox.HelpdeskToken)
	}
	return ticketfake.New()
}

func newMailerClient(cfg *config.Config) mailer.Client {
	if cfg.MatchBox.MailerBaseURL != "" && cfg.MatchBox.MailerMode == "rest" {
		return resthttp.New(cfg.MatchBox.MailerBaseURL, cfg.MatchBox.MailerAPIKey, cfg.MatchBox.MailerFrom)
	}
	return mailerfake.New()
}

func retryPlannerFromConfig(cfg *config.Config) *matching.RetryPlanner {
	return matching.NewRetryPlanner(matching.RetryConfig{
		Delay1:        time.Duration(cfg.MatchBox.WorkerBackoff1Seconds) * time.Second,
		Delay2:        time.Duration(cfg.MatchBox.WorkerBackoff2Seconds) * time.Second,
		Delay3:        time.Duration(cfg.MatchBox.WorkerBackoff3Seconds) * time.Second,
		Delay4:        time.Duration(cfg.MatchBox.WorkerBackoff4Seconds) * time.Second,
		JitterSeconds: cfg.MatchBox.WorkerJitterSeconds,
	}, nil)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgmatch.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgmatch.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *matchAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *matchAPIApp) Run() error {
	return runMatchAPI(a.ctx, a.opts, a.svc, a.consumer)
}
