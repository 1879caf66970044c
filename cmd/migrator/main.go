package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/sealmail/internal/logging"
	"github.com/dmitrijs2005/sealmail/internal/migrator"
)

func main() {

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := migrator.LoadConfig()
	logger := logging.New(os.Stderr, "text", cfg.LogLevel)

	app, err := migrator.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cmd, args := migrator.Command()
	if err := app.Run(ctx, cmd, args); err != nil {
		stop()
		log.Fatalf("%v", err)
	}

}
