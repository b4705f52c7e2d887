// Package telegram serves the shutter commands to a fixed set of Telegram
// users and tells the last of them about automatic actuations.
package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jkaflik/shuttercontrol/internal/control"
	"github.com/jkaflik/shuttercontrol/internal/scheduler"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sender delivers messages, *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api     Sender
	ctrl    *control.Controller
	allowed map[string]struct{}

	mu     sync.Mutex
	chatID int64
}

func NewBot(api Sender, ctrl *control.Controller, allowedUsers []string) *Bot {
	allowed := make(map[string]struct{}, len(allowedUsers))
	for _, u := range allowedUsers {
		allowed[u] = struct{}{}
	}

	return &Bot{
		api:     api,
		ctrl:    ctrl,
		allowed: allowed,
	}
}

// Connect authenticates with the bot API. Network failures are retried every
// retryDelay until ctx is cancelled, a rejected token is returned at once.
func Connect(ctx context.Context, token string, retryDelay time.Duration) (*tgbotapi.BotAPI, error) {
	for {
		api, err := tgbotapi.NewBotAPI(token)
		if err == nil {
			logrus.Infof("telegram: authorized as @%s", api.Self.UserName)
			return api, nil
		}

		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			return nil, errors.Wrap(err, "telegram: authorization rejected")
		}

		logrus.Warnf("telegram: no connection, retrying in %s: %s", retryDelay, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Serve handles updates until ctx is cancelled or updates is closed.
func (b *Bot) Serve(ctx context.Context, updates <-chan tgbotapi.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) handle(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	logrus.Debugf("telegram: message from @%s: %q", msg.From.UserName, msg.Text)

	if _, ok := b.allowed[msg.From.UserName]; !ok {
		b.reportContactTrial(msg)
		return
	}

	b.mu.Lock()
	b.chatID = msg.Chat.ID
	b.mu.Unlock()

	for _, r := range b.ctrl.Handle(ctx, msg.Text) {
		b.send(msg.Chat.ID, r)
	}
}

func (b *Bot) reportContactTrial(msg *tgbotapi.Message) {
	logrus.Warnf("telegram: contact trial from @%s (%d)", msg.From.UserName, msg.From.ID)

	chatID := b.chat()
	if chatID == 0 {
		return
	}

	b.send(chatID, control.Reply{Text: fmt.Sprintf("Contact trial from:\n%s %s (@%s, id %d): %q",
		msg.From.FirstName, msg.From.LastName, msg.From.UserName, msg.From.ID, msg.Text)})
}

func (b *Bot) chat() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chatID
}

func (b *Bot) send(chatID int64, r control.Reply) {
	m := tgbotapi.NewMessage(chatID, r.Text)
	if r.Markdown {
		m.ParseMode = tgbotapi.ModeMarkdownV2
	}

	if _, err := b.api.Send(m); err != nil {
		logrus.Errorf("telegram: send to %d failed: %s", chatID, err)
	}
}

// OnSchedulerUpdate tells the last chat about scheduled actuations.
func (b *Bot) OnSchedulerUpdate(u scheduler.Update) {
	if u.Fired == nil || u.Trigger != scheduler.TriggerSchedule {
		return
	}

	chatID := b.chat()
	if chatID == 0 {
		logrus.Debug("telegram: no chat to notify")
		return
	}

	go func() {
		b.send(chatID, control.Reply{Text: control.FiredText(u.Fired.Action)})

		st, err := b.ctrl.Status(context.Background())
		if err != nil {
			logrus.Errorf("telegram: status: %s", err)
			return
		}
		b.send(chatID, control.StatusReply(st))
	}()
}
