// Command engine runs one matching-engine shard: it drains its
// assigned markets' requests off the request bus, matches them against
// its in-memory orderbooks, settles fills against its ledger
// partition, and durably emits every resulting event.
//
// It doubles as the shard's own admin tool for one-shot maintenance
// operations (--dump-book, --unhalt, --reset-dedup) that act directly
// against the shard's durable stores. Run these only while the shard's
// long-running server process is stopped — they are not multi-writer
// safe against a live server sharing the same WAL/outbox directories.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/thecurioussailor/exchangecore/domain/market"
	"github.com/thecurioussailor/exchangecore/params"
	"github.com/thecurioussailor/exchangecore/pkg/util"
	"github.com/thecurioussailor/exchangecore/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		shardID     = flag.Int("shard-id", -1, "shard ID; overrides SHARD_ID env/config")
		marketsFlag = flag.String("markets", "", "comma-separated market IDs this shard owns; overrides SHARD_MARKETS")
		envFile     = flag.String("env", "", "path to a .env file (optional)")
		dumpBook    = flag.String("dump-book", "", "print the resting orderbook for a market_id and exit")
		unhalt      = flag.String("unhalt", "", "clear a market_id's halt state and exit")
		resetDedup  = flag.String("reset-dedup", "", "drop the shard's dedup cache (pass any value to confirm) and exit")
	)
	flag.Parse()

	cfg := params.LoadFromEnv(*envFile)
	if *shardID >= 0 {
		cfg.Engine.ShardID = *shardID
	}
	if *marketsFlag != "" {
		cfg.Engine.Markets = strings.Split(*marketsFlag, ",")
	}

	log, err := util.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		return 1
	}
	defer log.Sync()

	registry, err := params.LoadMarkets(cfg.Engine.MarketsFile)
	if err != nil {
		log.Error("load markets", zap.Error(err))
		return 1
	}

	shard, err := service.NewShard(cfg, registry, log)
	if err != nil {
		log.Error("shard init failed", zap.Error(err))
		return 2
	}
	defer shard.Close()

	switch {
	case *dumpBook != "":
		service.DumpBook(shard.Engine(), *dumpBook, os.Stdout)
		return 0
	case *unhalt != "":
		shard.Engine().Unhalt(market.MarketID(*unhalt))
		fmt.Fprintf(os.Stdout, "market %s unhalted\n", *unhalt)
		return 0
	case *resetDedup != "":
		shard.Engine().ResetDedup()
		fmt.Fprintln(os.Stdout, "dedup cache reset")
		return 0
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info("engine shard starting", zap.Int("shard_id", cfg.Engine.ShardID))
	if err := shard.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("shard run exited", zap.Error(err))
		return 2
	}
	log.Info("engine shard stopped")
	return 0
}
