// Command arenatoken mints and revokes arena bearer tokens against the
// running deployment's redis, so operators can onboard an arena without
// touching the server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"arena-agent/internal/auth"
	"arena-agent/internal/config"
	redisdb "arena-agent/internal/redis"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to the server config file")
	arenaID := flag.String("arena", "", "arena identifier the token is issued to")
	role := flag.String("role", auth.RoleArena, "token role: arena or operator")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	revoke := flag.Bool("revoke", false, "revoke the arena's current token instead of issuing")
	flag.Parse()

	if *arenaID == "" {
		fmt.Fprintln(os.Stderr, "arenatoken: -arena is required")
		os.Exit(1)
	}
	if *role != auth.RoleArena && *role != auth.RoleOperator {
		fmt.Fprintf(os.Stderr, "arenatoken: unknown role %q\n", *role)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Server.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "arenatoken: server.jwtSecret is empty; the deployment runs open and needs no tokens")
		os.Exit(1)
	}

	rdb := redisdb.NewClient(cfg)
	if err := redisdb.Ping(rdb); err != nil {
		fmt.Fprintf(os.Stderr, "Redis error: %v\n", err)
		os.Exit(1)
	}

	if *revoke {
		if err := auth.RevokeToken(rdb, *arenaID); err != nil {
			fmt.Fprintf(os.Stderr, "Revoke error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Revoked token for arena %s\n", *arenaID)
		return
	}

	token, err := auth.GenerateToken(cfg.Server.JWTSecret, *arenaID, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Token error: %v\n", err)
		os.Exit(1)
	}
	if err := auth.SetToken(rdb, *arenaID, token, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "Redis error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
