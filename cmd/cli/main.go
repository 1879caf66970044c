package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/sealmail/internal/client/cli"
	"github.com/dmitrijs2005/sealmail/internal/client/config"
	"github.com/dmitrijs2005/sealmail/internal/logging"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(os.Stderr, "text", cfg.LogLevel)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cmd, args := config.Command()
	if err := app.Run(ctx, cmd, args); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}
