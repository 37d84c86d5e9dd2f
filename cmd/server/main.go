package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arena-agent/internal/api"
	"arena-agent/internal/blobcache"
	"arena-agent/internal/config"
	"arena-agent/internal/db"
	"arena-agent/internal/orchestrator"
	"arena-agent/internal/planner"
	redisdb "arena-agent/internal/redis"
	"arena-agent/internal/rules"
	"arena-agent/internal/services"
	"arena-agent/internal/session"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	gdb, err := db.Init(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	store := session.NewStore(gdb)

	rdb := redisdb.NewClient(cfg)
	if err := redisdb.Ping(rdb); err != nil {
		fmt.Fprintf(os.Stderr, "Redis error: %v\n", err)
		os.Exit(1)
	}
	blobs := blobcache.New(rdb)

	set, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rules error: %v\n", err)
		os.Exit(1)
	}
	engine, err := rules.NewEngine(set, cfg.Rules.DefaultRuleID, rand.New(rand.NewSource(time.Now().UnixNano())))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rules error: %v\n", err)
		os.Exit(1)
	}
	log.Printf("[Main] loaded %d feedback rules", len(set.Rules))

	registry := services.NewRegistry(cfg)

	// Fail closed: no serving until every collaborator answers. Shutdown
	// signals interrupt only this wait, never an in-flight turn.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := registry.WaitHealthy(ctx, 5*time.Minute); err != nil {
		fmt.Fprintf(os.Stderr, "Collaborator health error: %v\n", err)
		os.Exit(1)
	}

	runtime := orchestrator.NewRuntime(cfg, store, blobs, registry, planner.New(cfg.Planner), engine)

	r := api.SetupRouter(cfg, runtime, registry, rdb)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Starting server on %s%s\n", addr, cfg.Server.Subpath)
	if err := r.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
