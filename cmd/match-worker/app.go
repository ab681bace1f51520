package main

import (
	"context"
	"fmt"
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
	"github.com/BridgeAid/MatchBox/internal/services/sweeper"
	"github.com/BridgeAid/MatchBox/internal/storage/pgmatch"
)

// workerStorage is what the worker needs from the database: the engine's
// repository plus the sweeper's claim query.
type workerStorage interface {
	matching.Repository
	sweeper.Repository
}

type workerFactories struct {
	newStorage         func(cfg *config.Config) (st workerStorage, closeFn func(), err error)
	newProducer        func(cfg *config.Config) matching.Producer
	newRateLimiter     func(cfg *config.Config) sweeper.RateLimiter
	newFlags           func(cfg *config.Config) flags.Provider
	newTicketingClient func(cfg *config.Config) ticketing.Client
	newMailerClient    func(cfg *config.Config) mailer.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStorage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgmatch.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) matching.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) sweeper.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newFlags: func(cfg *config.Config) flags.Provider {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return flags.NewRedis(redisAddr)
		},
		newTicketingClient: func(cfg *config.Config) ticketing.Client {
			if cfg.MatchBox.HelpdeskBaseURL != "" && cfg.MatchBox.HelpdeskMode == "desk" {
				return deskhttp.New(cfg.MatchBox.HelpdeskBaseURL, cfg.MatchBox.HelpdeskToken)
			}
			return ticketfake.New()
		},
		newMailerClient: func(cfg *config.Config) mailer.Client {
			if cfg.MatchBox.MailerBaseURL != "" && cfg.MatchBox.MailerMode == "rest" {
				return resthttp.New(cfg.MatchBox.MailerBaseURL, cfg.MatchBox.MailerAPIKey, cfg.MatchBox.MailerFrom)
			}
			return mailerfake.New()
		},
	}
}

// RunMatchWorker wires the engine and the claim loop; onReady hands the
// sweeper to the ops HTTP server before the loop starts.
func RunMatchWorker(ctx context.Context, cfg *config.Config, f workerFactories, onReady func(*sweeper.Sweeper)) error {
	outcomeTopic := cfg.Kafka.MatchOutcomeTopicName
	if outcomeTopic == "" {
		outcomeTopic = "match.outcome"
	}

	pollInterval := time.Duration(cfg.MatchBox.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.MatchBox.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.MatchBox.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := time.Duration(cfg.MatchBox.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.MatchBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	fp := f.newFlags(cfg)

	svc := matching.New(st, f.newTicketingClient(cfg), f.newMailerClient(cfg), fp, producer, outcomeTopic).
		WithCreatedTopic(cfg.Kafka.RequesterCreatedTopicName).
		WithHomeCountry(cfg.MatchBox.HomeCountry).
		WithIdealDistance(cfg.MatchBox.IdealDistanceKm).
		WithRetryPlanner(matching.NewRetryPlanner(matching.RetryConfig{
			Delay1:        time.Duration(cfg.MatchBox.WorkerBackoff1Seconds) * time.Second,
			Delay2:        time.Duration(cfg.MatchBox.WorkerBackoff2Seconds) * time.Second,
			Delay3:        time.Duration(cfg.MatchBox.WorkerBackoff3Seconds) * time.Second,
			Delay4:        time.Duration(cfg.MatchBox.WorkerBackoff4Seconds) * time.Second,
			JitterSeconds: cfg.MatchBox.WorkerJitterSeconds,
		}, nil))

	sw := sweeper.New(st, svc, rl).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin)

	if onReady != nil {
		onReady(sw)
	}

	return sw.Run(ctx)
}
