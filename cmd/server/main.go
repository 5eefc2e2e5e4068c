package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"weathersync/internal/app"
	"weathersync/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	log.SetPrefix("weathersync: ")
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	configPath := flag.String("config", "./configs/config.json", "path to config file")
	flag.Parse()

	// A missing .env is fine; the environment may be set another way.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Could not load .env file: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Create a new application instance
	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create a context that we can cancel
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)

	// Start the application
	if err := application.Start(ctx); err != nil {
		log.Fatalf("Application failed to start: %v", err)
	}

	<-sigchan
	log.Println("Shutdown signal received, initiating graceful shutdown...")
	if err := application.Stop(ctx); err != nil {
		log.Printf("Error during graceful shutdown: %v", err)
	}

	log.Println("Application has stopped.")
}
