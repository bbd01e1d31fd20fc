package discord

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/NgigiN/finboard/internal/config"
	"github.com/NgigiN/finboard/internal/ledger"
	"github.com/NgigiN/finboard/internal/metrics"
)

const reminderInterval = time.Hour

type Bot struct {
	session   *discordgo.Session
	svc       *ledger.Service
	user      ledger.UserContext
	channelID string
	loc       *time.Location

	mu           sync.Mutex
	lastReminder string
	stop         chan struct{}
	wg           sync.WaitGroup
}

// NewBot creates a bot that acts on user's ledger and listens on the
// configured channel only.
func NewBot(cfg config.DiscordConfig, svc *ledger.Service, user ledger.UserContext, loc *time.Location) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	bot := newBot(svc, user, cfg.ChannelID, loc)
	bot.session = session

	session.AddHandler(bot.handleMessage)
	session.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentMessageContent

	return bot, nil
}

func newBot(svc *ledger.Service, user ledger.UserContext, channelID string, loc *time.Location) *Bot {
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		svc:       svc,
		user:      user,
		channelID: channelID,
		loc:       loc,
		stop:      make(chan struct{}),
	}
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	b.wg.Add(1)
	go b.remindLoop()
	return nil
}

func (b *Bot) Stop() {
	close(b.stop)
	b.wg.Wait()
	b.session.Close()
}

func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return //bot's messages
	}
	if m.ChannelID != b.channelID {
		return //specific to the channel
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply := b.respond(ctx, m.Content)
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		log.Printf("discord: failed to reply: %v", err)
	}
}

func (b *Bot) remindLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(reminderInterval)
	defer ticker.Stop()

	b.sendReminder()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.sendReminder()
		}
	}
}

func (b *Bot) sendReminder() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg, ok := b.reminder(ctx, time.Now())
	if !ok {
		return
	}
	if _, err := b.session.ChannelMessageSend(b.channelID, msg); err != nil {
		log.Printf("discord: failed to send reminder: %v", err)
		return
	}
	metrics.BotMessages.WithLabelValues("reminder").Inc()
}

// reminder builds the daily due-bills message. It reports false when there
// is nothing due or a reminder already went out today.
func (b *Bot) reminder(ctx context.Context, now time.Time) (string, bool) {
	today := now.In(b.loc).Format("2006-01-02")

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lastReminder == today {
		return "", false
	}

	due, err := b.svc.DueAlerts(ctx, b.user)
	if err != nil {
		log.Printf("discord: failed to load due alerts: %v", err)
		return "", false
	}
	b.lastReminder = today
	if len(due) == 0 {
		return "", false
	}
	return "⏰ " + formatBills(due), true
}
