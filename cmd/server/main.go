package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/cloudwego/hertz/pkg/app/server"

	"bvlwatch/internal/api"
	"bvlwatch/internal/config"
	"bvlwatch/internal/journal"
	"bvlwatch/internal/query"
	"bvlwatch/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/app.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ds := store.New(cfg.Store.CSVPath)
	svc := query.NewService(ds)
	if err := svc.Reload(); err != nil {
		// Degraded start: keep serving health/status without data.
		log.Printf("snapshot load error: %v", err)
	}
	if loaded, reason := svc.Status(); loaded {
		log.Printf("snapshot loaded from %s", cfg.Store.CSVPath)
	} else {
		log.Printf("serving without data: %s", reason)
	}

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

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	api.RegisterRoutes(h, svc, j)

	log.Printf("server starting on %s (log.level=%s)", addr, cfg.Log.Level)
	if err := h.Run(); err != nil {
		log.Fatalf("server run error: %v", err)
	}
}
