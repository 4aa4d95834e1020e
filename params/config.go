// Package params centralizes engine and aggregator configuration,
// loaded from environment variables with an optional .env file,
// mirroring the env-override-over-defaults convention used elsewhere
// in the pack this project grew out of.
package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Dedup controls the request-deduplication LRU window (spec §4.3).
type Dedup struct {
	MaxEntries int
	TTL        time.Duration
}

// WAL controls the durable event-log segment rotation policy.
type WAL struct {
	EntryDir        string
	ExitDir         string
	SegmentSize     int64
	SegmentDuration time.Duration
}

// Bus controls the request/event channel transports.
type Bus struct {
	KafkaBrokers  []string
	RequestTopic  string
	EventTopic    string
	RequestGroup  string
	DrainInterval time.Duration
}

// Aggregator controls market-data fan-out.
type Aggregator struct {
	DepthLevels    int
	RecentTrades   int
	TickerBuckets  int
	TickerBucket   time.Duration
	HTTPAddr       string
	LagHighWater   int
}

type Engine struct {
	ShardID      int
	Markets      []string
	MarketsFile  string
	SnapshotDir  string
	SnapshotEach time.Duration
}

type Config struct {
	Engine     Engine
	Dedup      Dedup
	WAL        WAL
	Bus        Bus
	Aggregator Aggregator
}

func Default() Config {
	return Config{
		Engine: Engine{
			ShardID:      0,
			Markets:      nil,
			MarketsFile:  "./markets.json",
			SnapshotDir:  "./data/snapshots",
			SnapshotEach: 30 * time.Second,
		},
		Dedup: Dedup{
			MaxEntries: 100_000,
			TTL:        10 * time.Minute,
		},
		WAL: WAL{
			EntryDir:        "./data/wal_entry",
			ExitDir:         "./data/wal_exit",
			SegmentSize:     2 * 1024 * 1024,
			SegmentDuration: time.Minute,
		},
		Bus: Bus{
			KafkaBrokers:  []string{"localhost:9092"},
			RequestTopic:  "exchange.requests",
			EventTopic:    "exchange.events",
			RequestGroup:  "exchange-engine",
			DrainInterval: 250 * time.Millisecond,
		},
		Aggregator: Aggregator{
			DepthLevels:   50,
			RecentTrades:  200,
			TickerBuckets: 1440,
			TickerBucket:  time.Minute,
			HTTPAddr:      ":8090",
			LagHighWater:  10_000,
		},
	}
}

// LoadFromEnv loads an optional .env file then applies environment
// variable overrides on top of Default(). Priority: ENV > .env > default.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("SHARD_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.ShardID = n
		}
	}
	if v := os.Getenv("SHARD_MARKETS"); v != "" {
		cfg.Engine.Markets = strings.Split(v, ",")
	}
	if v := os.Getenv("MARKETS_FILE"); v != "" {
		cfg.Engine.MarketsFile = v
	}
	if v := os.Getenv("SNAPSHOT_DIR"); v != "" {
		cfg.Engine.SnapshotDir = v
	}
	if v := os.Getenv("SNAPSHOT_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Engine.SnapshotEach = time.Duration(ms) * time.Millisecond
		}
	}

	if v := os.Getenv("DEDUP_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.MaxEntries = n
		}
	}
	if v := os.Getenv("DEDUP_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.TTL = time.Duration(n) * time.Second
		}
	}

	if v := os.Getenv("WAL_ENTRY_DIR"); v != "" {
		cfg.WAL.EntryDir = v
	}
	if v := os.Getenv("WAL_EXIT_DIR"); v != "" {
		cfg.WAL.ExitDir = v
	}
	if v := os.Getenv("WAL_SEGMENT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.WAL.SegmentSize = n
		}
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Bus.KafkaBrokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_REQUEST_TOPIC"); v != "" {
		cfg.Bus.RequestTopic = v
	}
	if v := os.Getenv("KAFKA_EVENT_TOPIC"); v != "" {
		cfg.Bus.EventTopic = v
	}

	if v := os.Getenv("AGGREGATOR_HTTP_ADDR"); v != "" {
		cfg.Aggregator.HTTPAddr = v
	}
	if v := os.Getenv("AGGREGATOR_DEPTH_LEVELS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Aggregator.DepthLevels = n
		}
	}

	return cfg
}
