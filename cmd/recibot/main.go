package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/susu3304/recibot/internal/api"
	"github.com/susu3304/recibot/internal/bot"
	"github.com/susu3304/recibot/internal/config"
	"github.com/susu3304/recibot/internal/db"
	"github.com/susu3304/recibot/internal/ocr"
	"github.com/susu3304/recibot/internal/receipt"
	"github.com/susu3304/recibot/internal/ticket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(context.Background()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Rebuild in-memory sessions from persisted snapshots
	svc := receipt.NewService(database)
	if ids, err := database.ListSessionIDs(context.Background()); err != nil {
		log.Printf("Failed to list persisted sessions: %v", err)
	} else {
		for _, id := range ids {
			if err := svc.Restore(context.Background(), id); err != nil {
				log.Printf("Failed to restore session %s: %v", id, err)
			}
		}
		log.Printf("Restored %d sessions", len(ids))
	}

	// Receipt collaborators
	ticketClient := ticket.NewClient(cfg.FTSInn, cfg.FTSPassword, cfg.FTSClientSecret)
	ocrClient := ocr.NewClient(cfg.OpenAIAPIKey)

	// Initialize Discord bot
	discordBot, err := bot.New(cfg.DiscordToken, database, svc, ticketClient, ocrClient)
	if err != nil {
		log.Fatalf("Failed to create discord bot: %v", err)
	}

	// Initialize API server
	apiServer := api.New(cfg, database, svc)

	// Start Discord bot
	if err := discordBot.Start(); err != nil {
		log.Fatalf("Failed to start discord bot: %v", err)
	}
	defer discordBot.Stop()

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
}
