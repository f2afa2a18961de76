package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/chatsync/internal/relay"
	"github.com/dmitrijs2005/chatsync/internal/relay/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	if cfg.IssueToken != "" {
		if err := relay.IssueToken(cfg, os.Stdout); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	app, err := relay.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
