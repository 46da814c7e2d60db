package main

import (
	"log"

	"medgate/internal/config"
	"medgate/internal/infra/db"
	httpinfra "medgate/internal/infra/http"
	"medgate/internal/logging"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.NewLogger(cfg.Env, cfg.LogLevel)

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	srv := httpinfra.NewServer(cfg, store, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
