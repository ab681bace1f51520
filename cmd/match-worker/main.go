package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BridgeAid/MatchBox/config"
	"github.com/BridgeAid/MatchBox/internal/services/sweeper"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to parse config, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpErr := make(chan error, 1)
	onReady := func(sw *sweeper.Sweeper) {
		go func() {
			httpErr <- runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    cfg.MatchBox.WorkerHTTPAddr,
				swaggerPath: os.Getenv("swaggerPath"),
				sweeper:     sw,
				cfg:         cfg,
			})
		}()
	}

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- RunMatchWorker(ctx, cfg, defaultWorkerFactories(), onReady)
	}()

	select {
	case err := <-workerErr:
		if err != nil && err != context.Canceled {
			panic(err)
		}
	case err := <-httpErr:
		if err != nil && err != context.Canceled {
			slog.Error("worker http server stopped", "error", err.Error())
		}
		<-workerErr
	}
}
