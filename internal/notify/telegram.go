// Package notify mirrors engine status messages to the operator.
//
// telegram.go - optional Telegram notifier. Fill-progress updates are too
// chatty for a chat channel, so only completed positions are forwarded.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Notifier sends status messages to a Telegram chat.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// New connects the Telegram bot API.
func New(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("Telegram notifier connected")

	return &Notifier{api: api, chatID: chatID}, nil
}

// MarkFilled announces that a position reached its target fill.
func (n *Notifier) MarkFilled(marketHash string, currentFill decimal.Decimal) {
	if n == nil || n.chatID == 0 {
		return
	}

	text := fmt.Sprintf("✅ Position filled\nMarket: %s\nTotal matched: %s", marketHash, currentFill.String())
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Warn().Err(err).Msg("Telegram send failed")
	}
}
