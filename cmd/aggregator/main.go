// Command aggregator runs the market-data fan-out service: it tails
// the engine's event topic independently of the persistence worker,
// maintains per-market depth/ticker/recent-trades state, and serves it
// over REST and WebSocket to subscribers (spec §4.5).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/aggregator"
	"github.com/thecurioussailor/exchangecore/api"
	"github.com/thecurioussailor/exchangecore/api/ws"
	busevent "github.com/thecurioussailor/exchangecore/infra/bus/event"
	"github.com/thecurioussailor/exchangecore/params"
	"github.com/thecurioussailor/exchangecore/pkg/util"
)

func main() {
	os.Exit(run())
}

func run() int {
	envFile := os.Getenv("AGGREGATOR_ENV_FILE")
	cfg := params.LoadFromEnv(envFile)

	log, err := util.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		return 1
	}
	defer log.Sync()

	hub := ws.NewHub(log)
	agg := aggregator.New(
		cfg.Aggregator.DepthLevels,
		cfg.Aggregator.RecentTrades,
		cfg.Aggregator.TickerBuckets,
		cfg.Aggregator.TickerBucket,
		cfg.Aggregator.LagHighWater,
		hub,
		util.RealClock{},
		log,
	)
	hub.BindAggregator(agg)

	consumer, err := busevent.NewConsumer(cfg.Bus.KafkaBrokers, cfg.Bus.EventTopic)
	if err != nil {
		log.Error("event consumer init failed", zap.Error(err))
		return 2
	}
	defer consumer.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go hub.Run()
	go func() {
		if err := agg.Run(ctx, consumer); err != nil && ctx.Err() == nil {
			log.Error("aggregator event loop exited", zap.Error(err))
		}
	}()

	server := api.NewServer(agg, hub, log)
	httpServer := &http.Server{Addr: cfg.Aggregator.HTTPAddr, Handler: server.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("aggregator listening", zap.String("addr", cfg.Aggregator.HTTPAddr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("http server exited", zap.Error(err))
		return 2
	}

	log.Info("aggregator stopped")
	return 0
}
