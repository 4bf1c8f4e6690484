// internal/infra/telegram/adapter.go
package telegram

import (
	"context"
	"fmt"
	"strconv"

	"chore_notifier/internal/domain/channel"
	"chore_notifier/internal/domain/household"
	"chore_notifier/internal/domain/notification"

	"gopkg.in/telebot.v3"
)

// Adapter carries chat messages over Telegram using gopkg.in/telebot.v3.
// The bot may be nil when no token is configured; the channel is then
// reported as unconfigured and the dispatcher falls back.
type Adapter struct {
	bot *telebot.Bot
}

func NewAdapter(b *telebot.Bot) *Adapter {
	return &Adapter{bot: b}
}

func (a *Adapter) Kind() notification.Channel {
	return notification.ChannelChat
}

func (a *Adapter) IsConfigured() bool {
	return a.bot != nil
}

// Send delivers the payload to the user's linked chat. telebot's send is
// synchronous, so it runs in a goroutine and the context deadline bounds the
// wait; a timed-out send is reported as a failure to the caller.
func (a *Adapter) Send(ctx context.Context, rcpt *household.User, payload notification.Payload) (*channel.Result, error) {
	if a.bot == nil {
		return nil, fmt.Errorf("telegram bot is not configured")
	}
	if rcpt.ChatID == 0 {
		return nil, fmt.Errorf("user %s has no linked chat", rcpt.ID)
	}

	text := payload.Body
	if payload.Subject != "" {
		text = fmt.Sprintf("*%s*\n%s", payload.Subject, payload.Body)
	}

	type sendResult struct {
		msg *telebot.Message
		err error
	}
	done := make(chan sendResult, 1)
	go func() {
		msg, err := a.bot.Send(&telebot.User{ID: rcpt.ChatID}, text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
		done <- sendResult{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("telegram send timed out: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("telegram send failed: %w", res.err)
		}
		return &channel.Result{ProviderMessageID: strconv.Itoa(res.msg.ID)}, nil
	}
}
