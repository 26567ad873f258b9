package main

import (
	"context"
	"flag"
	"log"
	"time"

	"bvlwatch/internal/config"
	"bvlwatch/internal/journal"
	"bvlwatch/internal/market"
	"bvlwatch/internal/scheduler"
	"bvlwatch/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/app.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	client := market.NewClient(market.ClientConfig{
		URL:          cfg.Source.URL,
		Headers:      cfg.Source.Headers,
		Sector:       cfg.Source.Sector,
		CompanyCode:  cfg.Source.CompanyCode,
		InputCompany: cfg.Source.InputCompany,
		Timeout:      time.Duration(cfg.Source.TimeoutSec) * time.Second,
		Retry: market.RetryPolicy{
			MaxAttempts: cfg.Source.Retry.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Source.Retry.BackoffMs) * time.Millisecond,
		},
	})

	j, err := journal.Open(cfg.Journal.SqlitePath)
	if err != nil {
		log.Printf("journal open error: %v", err)
		j = nil
	}
	defer func() {
		if err := j.Close(); err != nil {
			log.Printf("journal close error: %v", err)
		}
	}()

	sched := scheduler.New(scheduler.Config{
		Targets:    cfg.Fetch.Targets,
		Iterations: cfg.Fetch.Iterations,
		Wait:       time.Duration(cfg.Fetch.WaitSec) * time.Second,
	}, client, store.New(cfg.Store.CSVPath), j)

	results := sched.Run(context.Background())

	merged := 0
	for _, res := range results {
		if res.Err == nil && res.Rows > 0 {
			merged++
		}
	}
	log.Printf("run complete: %d/%d iterations merged data", merged, len(results))
}
