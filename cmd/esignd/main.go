package main

import (
	"context"
	"log"

	"esignd/internal/config"
	"esignd/internal/infra/db"
	httpinfra "esignd/internal/infra/http"
)

func main() {
	cfg := config.FromEnv()

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	srv := httpinfra.NewServer(cfg, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.RunExpirySweep(ctx)

	if err := srv.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
