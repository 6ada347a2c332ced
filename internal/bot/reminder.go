package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/susu3304/recibot/internal/db"
	"github.com/susu3304/recibot/internal/receipt"
)

// reminderWorker periodically nudges participants who have not confirmed
// their share, and unbinds channels whose receipt settled long ago.
type reminderWorker struct {
	store    reminderStore
	svc      *receipt.Service
	session  reminderSession
	stopChan chan struct{}
	ticker   *time.Ticker
	interval time.Duration

	remindAfter time.Duration
	expireAfter time.Duration
	lastRemind  map[string]time.Time
}

// Minimal session interface for sending channel messages.
type reminderSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Minimal store interface for the sweep.
type reminderStore interface {
	ListBindings(ctx context.Context) ([]db.ChannelBinding, error)
	UnbindChannel(ctx context.Context, channelID string) error
}

func newReminderWorker(session reminderSession, store reminderStore, svc *receipt.Service) *reminderWorker {
	return &reminderWorker{
		store:       store,
		svc:         svc,
		session:     session,
		stopChan:    make(chan struct{}),
		interval:    time.Minute,
		remindAfter: 30 * time.Minute,
		expireAfter: 24 * time.Hour,
		lastRemind:  make(map[string]time.Time),
	}
}

func (w *reminderWorker) start() {
	if w == nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	go w.loop()
}

func (w *reminderWorker) stop() {
	if w == nil {
		return
	}
	close(w.stopChan)
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

func (w *reminderWorker) loop() {
	ctx := context.Background()
	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx, time.Now())
		case <-w.stopChan:
			return
		}
	}
}

func (w *reminderWorker) tick(ctx context.Context, now time.Time) {
	bindings, err := w.store.ListBindings(ctx)
	if err != nil {
		log.Printf("reminder: failed to load channel bindings: %v", err)
		return
	}

	for _, b := range bindings {
		unfinished, state, err := w.svc.Unfinished(b.SessionID)
		if err != nil {
			if errors.Is(err, receipt.ErrUnknownSession) {
				// The session is gone from memory; the binding is dead.
				w.unbind(ctx, b.ChannelID)
			} else {
				log.Printf("reminder: failed to inspect session %s: %v", b.SessionID, err)
			}
			continue
		}

		switch {
		case state == receipt.Settled:
			// Keep the binding around briefly so /receipt result still
			// answers, then let the channel start a fresh receipt.
			if now.Sub(b.UpdatedAt) >= w.expireAfter {
				w.unbind(ctx, b.ChannelID)
			}
		case state == receipt.Allocating && now.Sub(b.UpdatedAt) >= w.remindAfter:
			if last, ok := w.lastRemind[b.SessionID]; ok && now.Sub(last) < w.remindAfter {
				continue
			}
			msg := reminderMessage(unfinished)
			if err := w.sendWithRetry(ctx, b.ChannelID, msg); err != nil {
				log.Printf("reminder: failed to send message to channel %s: %v", b.ChannelID, err)
				continue
			}
			w.lastRemind[b.SessionID] = now
		}
	}
}

func (w *reminderWorker) unbind(ctx context.Context, channelID string) {
	if err := w.store.UnbindChannel(ctx, channelID); err != nil {
		log.Printf("reminder: failed to unbind channel %s: %v", channelID, err)
	}
}

func reminderMessage(unfinished []string) string {
	var b strings.Builder
	b.WriteString("取り分の確定がまだのレシートがあります。")
	if len(unfinished) > 0 {
		b.WriteString("\n未確定: ")
		mentions := make([]string, 0, len(unfinished))
		for _, id := range unfinished {
			mentions = append(mentions, fmt.Sprintf("<@%s>", id))
		}
		b.WriteString(strings.Join(mentions, " "))
	}
	b.WriteString("\n\n※このメッセージは自動投稿です")
	return b.String()
}

func (w *reminderWorker) sendWithRetry(ctx context.Context, channelID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := w.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	if err == nil {
		return false
	}
	if ne, ok := err.(net.Error); ok {
		return ne.Timeout() || ne.Temporary()
	}
	return false
}
