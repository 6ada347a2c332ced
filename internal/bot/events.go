package bot

import (
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/recibot/internal/commands"
	"github.com/susu3304/recibot/internal/ticket"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("%s is connected!", event.User.Username)

	// Register commands for all guilds
	for _, guild := range event.Guilds {
		if err := b.registerGuildCommands(guild.ID); err != nil {
			log.Printf("Failed to register commands for guild %s: %v", guild.ID, err)
		}
	}
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	log.Printf("Guild available/joined: %s (id=%s) — ensuring commands", event.Name, event.ID)
	if err := b.registerGuildCommands(event.ID); err != nil {
		log.Printf("Failed to register commands for guild %s: %v", event.ID, err)
	}
}

func (b *Bot) registerGuildCommands(guildID string) error {
	cmds := commands.GetCommands()
	// Delete existing commands and register new ones
	_, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, guildID, cmds)
	if err != nil {
		return err
	}

	log.Printf("Registered application commands for guild %s", guildID)
	return nil
}

// onMessageCreate starts a new receipt from either an attached photo or a
// pasted QR payload.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore bot messages
	if m.Author.Bot {
		return
	}

	for _, att := range m.Attachments {
		if strings.HasPrefix(att.ContentType, "image/") {
			b.receipt.HandlePhoto(s, m, att.URL)
			return
		}
	}

	if ticket.IsQR(strings.TrimSpace(m.Content)) {
		b.receipt.HandleQRMessage(s, m)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleApplicationCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.receipt.HandleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		b.receipt.HandleModal(s, i)
	}
}

func (b *Bot) handleApplicationCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	switch data.Name {
	case "receipt":
		b.receipt.HandleCommand(s, i)
	}
}
