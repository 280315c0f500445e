// nebula-bench - workload driver for the embedded engine
//
// Usage:
//
//	nebula-bench [flags]
//
// Flags:
//
//	-workers int     Number of parallel workers (default 50)
//	-requests int    Total number of operations (default 100000)
//	-test string     Workload: set,get,mixed,incr,queue (default "mixed")
package main

import (
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	nebula "github.com/eternalApril/nebula"
	"github.com/eternalApril/nebula/internal/config"
	"github.com/eternalApril/nebula/internal/logger"
	"github.com/eternalApril/nebula/queue"
)

func main() {
	workers := flag.Int("workers", 50, "Number of parallel workers")
	requests := flag.Int("requests", 100000, "Total number of operations")
	testType := flag.String("test", "mixed", "Workload: set,get,mixed,incr,queue")
	flag.Parse()

	cfg, err := config.Load(".")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync() //nolint:errcheck

	log.Info("nebula-bench starting",
		zap.Uint("shards", cfg.Storage.Shards),
		zap.Int("workers", *workers),
		zap.Int("requests", *requests),
		zap.String("test", *testType),
	)

	engine, err := nebula.New(
		nebula.WithShards(cfg.Storage.Shards),
		nebula.WithLogger(log),
		nebula.WithGC(nebula.GCConfig{
			Enabled:         cfg.GC.Enabled,
			Interval:        cfg.GC.Interval,
			SamplesPerCheck: cfg.GC.SamplesPerCheck,
			MatchThreshold:  cfg.GC.MatchThreshold,
		}),
		nebula.WithQueueConfig(queue.Config{
			MaxRetries:        cfg.Queue.MaxRetries,
			ProcessingTimeout: cfg.Queue.ProcessingTimeout,
		}),
		nebula.WithTokenBucket(cfg.RateLimit.BucketCapacity, cfg.RateLimit.BucketRefillPerSec),
	)
	if err != nil {
		log.Error("cant initialize engine", zap.Error(err))
		return
	}
	defer engine.Shutdown()

	var completed, failed int64
	reqPerWorker := *requests / *workers

	start := time.Now()
	var wg sync.WaitGroup

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := 0; j < reqPerWorker; j++ {
				key := fmt.Sprintf("key:%d:%d", workerID, j)
				value := fmt.Sprintf("value:%d:%d", workerID, j)

				var err error
				switch *testType {
				case "set":
					err = engine.Set(key, value)
				case "get":
					_, _, err = engine.Get(key)
				case "incr":
					_, err = engine.IncrBy(fmt.Sprintf("counter:%d", workerID), 1)
				case "queue":
					if j%2 == 0 {
						_, err = engine.Enqueue("bench", value, queue.PriorityNormal)
					} else {
						_, _, err = engine.Dequeue("bench")
					}
				default: // mixed
					if j%2 == 0 {
						err = engine.Set(key, value)
					} else {
						_, _, err = engine.Get(key)
					}
				}

				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&completed, 1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	log.Info("nebula-bench finished",
		zap.Int64("completed", completed),
		zap.Int64("failed", failed),
		zap.Duration("elapsed", elapsed),
		zap.Float64("ops_per_sec", float64(completed)/elapsed.Seconds()),
	)
}
