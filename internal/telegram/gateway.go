package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the part of *tgbotapi.BotAPI the gateway needs.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Gateway delivers and closes polls in Telegram chats.
type Gateway struct {
	bot BotAPI
}

func NewGateway(bot BotAPI) *Gateway {
	return &Gateway{bot: bot}
}

func (g *Gateway) SendPoll(ctx context.Context, chatID, question string, options []string, anonymous, multiple bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cfg := tgbotapi.NewPoll(0, question, options...)
	if err := setChat(&cfg.BaseChat, chatID); err != nil {
		return 0, err
	}
	cfg.IsAnonymous = anonymous
	cfg.AllowsMultipleAnswers = multiple

	sent, err := g.bot.Send(cfg)
	if err != nil {
		return 0, fmt.Errorf("send poll to %s: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// StopPoll closes answering on a sent poll. A poll Telegram already closed
// counts as stopped.
func (g *Gateway) StopPoll(ctx context.Context, chatID string, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cfg := tgbotapi.NewStopPoll(0, messageID)
	id, username, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	cfg.ChatID = id
	cfg.ChannelUsername = username

	if _, err := g.bot.Request(cfg); err != nil {
		if isAPIError(err, pollAlreadyClosed) {
			return nil
		}
		return fmt.Errorf("stop poll %d in %s: %w", messageID, chatID, err)
	}
	return nil
}

const pollAlreadyClosed = "Bad Request: poll has already been closed"

// isAPIError reports whether err is a Telegram API error with the given
// description.
func isAPIError(err error, description string) bool {
	var ptr *tgbotapi.Error
	if errors.As(err, &ptr) {
		return ptr.Message == description
	}
	var val tgbotapi.Error
	if errors.As(err, &val) {
		return val.Message == description
	}
	return false
}

func setChat(c *tgbotapi.BaseChat, chatID string) error {
	id, username, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	c.ChatID = id
	c.ChannelUsername = username
	return nil
}

// parseChatID accepts numeric ids (including negative group ids) and
// "@channel" usernames.
func parseChatID(chatID string) (int64, string, error) {
	chatID = strings.TrimSpace(chatID)
	if strings.HasPrefix(chatID, "@") && len(chatID) > 1 {
		return 0, chatID, nil
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("bad chat id %q", chatID)
	}
	return id, "", nil
}
