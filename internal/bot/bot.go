package bot

import (
	"fmt"
	"log"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/recibot/internal/commands"
	"github.com/susu3304/recibot/internal/db"
	"github.com/susu3304/recibot/internal/ocr"
	"github.com/susu3304/recibot/internal/receipt"
	"github.com/susu3304/recibot/internal/ticket"
)

type Bot struct {
	session  *discordgo.Session
	db       *db.DB
	receipt  *commands.Receipt
	reminder *reminderWorker
}

func New(token string, database *db.DB, svc *receipt.Service, tc *ticket.Client, oc *ocr.Client) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := &Bot{
		session:  session,
		db:       database,
		receipt:  commands.NewReceipt(svc, database, tc, oc),
		reminder: newReminderWorker(session, database, svc),
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onMessageCreate)
	session.AddHandler(bot.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsDirectMessages

	return bot, nil
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	b.reminder.start()
	log.Println("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	b.reminder.stop()
	return b.session.Close()
}
