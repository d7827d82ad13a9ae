package telegram

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBot struct {
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	err       error
}

func (b *recordingBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	return tgbotapi.Message{MessageID: 77}, nil
}

func (b *recordingBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.requested = append(b.requested, c)
	if b.err != nil {
		return nil, b.err
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func TestGateway_SendPoll(t *testing.T) {
	bot := &recordingBot{}
	g := NewGateway(bot)

	id, err := g.SendPoll(context.Background(), "-1001234567890", "Coming today?", []string{"Yes", "No"}, false, true)
	require.NoError(t, err)
	assert.Equal(t, 77, id)

	require.Len(t, bot.sent, 1)
	cfg := bot.sent[0].(tgbotapi.SendPollConfig)
	assert.Equal(t, int64(-1001234567890), cfg.ChatID)
	assert.Equal(t, "Coming today?", cfg.Question)
	assert.Equal(t, []string{"Yes", "No"}, cfg.Options)
	assert.False(t, cfg.IsAnonymous)
	assert.True(t, cfg.AllowsMultipleAnswers)
}

func TestGateway_SendPollToChannel(t *testing.T) {
	bot := &recordingBot{}
	_, err := NewGateway(bot).SendPoll(context.Background(), "@team", "Q", []string{"a", "b"}, true, false)
	require.NoError(t, err)

	cfg := bot.sent[0].(tgbotapi.SendPollConfig)
	assert.Equal(t, "@team", cfg.ChannelUsername)
	assert.Zero(t, cfg.ChatID)
}

func TestGateway_BadChatID(t *testing.T) {
	bot := &recordingBot{}
	_, err := NewGateway(bot).SendPoll(context.Background(), "team", "Q", []string{"a", "b"}, true, false)
	assert.Error(t, err)
	assert.Empty(t, bot.sent)
}

func TestGateway_StopPoll(t *testing.T) {
	bot := &recordingBot{}
	require.NoError(t, NewGateway(bot).StopPoll(context.Background(), "42", 9))

	cfg := bot.requested[0].(tgbotapi.StopPollConfig)
	assert.Equal(t, int64(42), cfg.ChatID)
	assert.Equal(t, 9, cfg.MessageID)
}

func TestGateway_StopPollAlreadyClosed(t *testing.T) {
	bot := &recordingBot{err: &tgbotapi.Error{Code: 400, Message: "Bad Request: poll has already been closed"}}
	assert.NoError(t, NewGateway(bot).StopPoll(context.Background(), "42", 9))

	cases := map[string]error{
		"other api error":      &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was kicked from the group chat"},
		"transport error text": errors.New("Bad Request: poll has already been closed"),
	}
	for name, err := range cases {
		t.Run(name, func(t *testing.T) {
			bot := &recordingBot{err: err}
			assert.Error(t, NewGateway(bot).StopPoll(context.Background(), "42", 9))
		})
	}
}
