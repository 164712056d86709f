package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// StatusNotifier is told when an upstream changes status, e.g. a daemon
// going from "connected" to "disconnected".
type StatusNotifier interface {
	NotifyStatusChange(source, previous, current string) error
}

type noopNotifier struct{}

func (noopNotifier) NotifyStatusChange(string, string, string) error { return nil }

// discordSender is the part of *discordgo.Session the notifier uses.
type discordSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordBotService struct {
	session   discordSender
	closer    func() error
	channelID string
	enabled   bool
}

// NewDiscordBotService connects the bot. Without a token or channel the
// returned service is disabled and every notification is a no-op.
func NewDiscordBotService(token string, channelID string) (*DiscordBotService, error) {
	if token == "" || channelID == "" {
		log.Info("Discord bot token or channel not provided, status notifications disabled")
		return &DiscordBotService{enabled: false}, nil
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("failed to open Discord connection: %w", err)
	}

	log.WithField("channel", channelID).Info("Discord bot connected")

	return &DiscordBotService{
		session:   session,
		closer:    session.Close,
		channelID: channelID,
		enabled:   true,
	}, nil
}

func (d *DiscordBotService) Enabled() bool {
	return d != nil && d.enabled
}

func (d *DiscordBotService) Close() {
	if d.Enabled() && d.closer != nil {
		log.Info("Closing Discord bot connection...")
		if err := d.closer(); err != nil {
			log.WithError(err).Warn("Discord close failed")
		}
	}
}

func (d *DiscordBotService) NotifyStatusChange(source, previous, current string) error {
	if !d.Enabled() {
		return nil
	}

	if _, err := d.session.ChannelMessageSendEmbed(d.channelID, statusEmbed(source, previous, current, time.Now())); err != nil {
		return fmt.Errorf("failed to send Discord message: %w", err)
	}

	log.WithFields(log.Fields{"source": source, "status": current}).Info("Status change sent to Discord")
	return nil
}

func statusEmbed(source, previous, current string, at time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s is %s", source, strings.ToUpper(current)),
		Description: fmt.Sprintf("Status changed from **%s** to **%s**.", previous, current),
		Color:       statusColor(current),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Source", Value: source, Inline: true},
			{Name: "Changed At", Value: at.Format("2006-01-02 15:04:05 MST"), Inline: true},
		},
		Timestamp: at.Format(time.RFC3339),
	}
}

func statusColor(status string) int {
	switch status {
	case "connected", "active":
		return 3066993 // Green
	case "disconnected", "inactive":
		return 15158332 // Red
	default:
		return 3447003 // Blue
	}
}
