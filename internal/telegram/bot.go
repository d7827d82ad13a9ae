package telegram

import (
	"context"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

// UpdatesBot is a BotAPI that can long-poll for updates.
type UpdatesBot interface {
	BotAPI
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// CommandHandler returns the reply text for a message, "" for no reply.
type CommandHandler interface {
	Handle(ctx context.Context, msg *tgbotapi.Message) string
}

// MembershipHandler is told when the bot joins or leaves a group or channel.
type MembershipHandler interface {
	Joined(ctx context.Context, c models.Chat) error
	Left(ctx context.Context, chatID string) error
}

// Listen feeds incoming messages to h and the bot's own membership changes
// to members until ctx is done or the updates channel closes. Replies go
// back to the chat the message came from.
func Listen(ctx context.Context, bot UpdatesBot, h CommandHandler, members MembershipHandler, log *slog.Logger) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "my_chat_member"}
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case upd.MyChatMember != nil:
				trackMembership(ctx, upd.MyChatMember, members, log)
			case upd.Message != nil:
				reply(ctx, bot, h, upd.Message, log)
			}
		}
	}
}

func reply(ctx context.Context, bot UpdatesBot, h CommandHandler, in *tgbotapi.Message, log *slog.Logger) {
	text := h.Handle(ctx, in)
	if text == "" {
		return
	}
	msg := tgbotapi.NewMessage(in.Chat.ID, text)
	msg.ReplyToMessageID = in.MessageID
	if _, err := bot.Send(msg); err != nil {
		log.Warn("send reply", "chat_id", in.Chat.ID, "error", err)
	}
}

func trackMembership(ctx context.Context, upd *tgbotapi.ChatMemberUpdated, members MembershipHandler, log *slog.Logger) {
	// private chats change membership when a user blocks the bot
	if members == nil || upd.Chat.IsPrivate() {
		return
	}
	was, is := inChat(upd.OldChatMember), inChat(upd.NewChatMember)
	if was == is {
		return
	}

	chatID := strconv.FormatInt(upd.Chat.ID, 10)
	var err error
	if is {
		err = members.Joined(ctx, models.Chat{
			ID:      chatID,
			Title:   upd.Chat.Title,
			IsGroup: upd.Chat.IsGroup() || upd.Chat.IsSuperGroup(),
		})
	} else {
		err = members.Left(ctx, chatID)
	}
	if err != nil {
		log.Error("track chat membership", "chat_id", chatID, "joined", is, "error", err)
	}
}

func inChat(m tgbotapi.ChatMember) bool {
	switch m.Status {
	case "creator", "administrator", "member":
		return true
	case "restricted":
		return m.IsMember
	}
	return false
}
