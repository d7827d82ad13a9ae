package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nikitkaralius/weeklypoll/internal/engine"
	"github.com/nikitkaralius/weeklypoll/internal/models"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
	"github.com/nikitkaralius/weeklypoll/internal/scheduler"
)

type PollService interface {
	List(ctx context.Context) ([]models.Poll, error)
	Create(ctx context.Context, p *models.Poll) error
	Delete(ctx context.Context, title string) error
	Pause(ctx context.Context, title, text string) (*models.Poll, error)
	Resume(ctx context.Context, title, text string) (*models.Poll, error)
	ClearPauses(ctx context.Context, title string) (*models.Poll, error)
}

type Syncer interface {
	Sync(ctx context.Context) (scheduler.SyncResult, error)
}

// ChatDirectory lists the chats the bot is in and resolves the chat given
// to /newpoll.
type ChatDirectory interface {
	List(ctx context.Context) ([]models.Chat, error)
	Resolve(ctx context.Context, ref string) (string, error)
}

// Admin answers poll management commands sent to the bot in private chats.
type Admin struct {
	svc    PollService
	sync   Syncer
	chats  ChatDirectory
	cache  polls.Invalidator
	admins []int64
	log    *slog.Logger
}

func NewAdmin(svc PollService, sync Syncer, chats ChatDirectory, cache polls.Invalidator, admins []int64, log *slog.Logger) *Admin {
	return &Admin{svc: svc, sync: sync, chats: chats, cache: cache, admins: admins, log: log}
}

const helpText = `Commands:
/polls - list polls
/chats - list chats polls can go to
` + NewPollUsage + `
/delete title
/pause title | 27.11-29.11, 31.12
/resume title | 31.12
/resume title | clear
/sync - evaluate polls now
/clearcache - drop cached polls`

// Handle returns the reply to msg, or "" when the message is not for us.
func (a *Admin) Handle(ctx context.Context, msg *tgbotapi.Message) string {
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return ""
	}
	if msg.Chat == nil || !msg.Chat.IsPrivate() {
		return ""
	}
	if !slices.Contains(a.admins, msg.From.ID) {
		a.log.Debug("command from non-admin ignored", "user_id", msg.From.ID, "command", msg.Command())
		return ""
	}

	args := strings.TrimSpace(msg.CommandArguments())
	log := a.log.With("command", msg.Command(), "user_id", msg.From.ID)

	reply, err := a.dispatch(ctx, msg.Command(), args, msg.From.ID)
	switch {
	case errors.Is(err, errUsage):
		return "Usage:\n" + usageOf(msg.Command())
	case err != nil && polls.IsUserError(err):
		return "Error: " + err.Error()
	case err != nil:
		log.Error("admin command failed", "error", err)
		return "Something went wrong, try again later."
	}
	return reply
}

func (a *Admin) dispatch(ctx context.Context, cmd, args string, from int64) (string, error) {
	switch cmd {
	case "start", "help":
		return helpText, nil

	case "polls":
		ps, err := a.svc.List(ctx)
		if err != nil {
			return "", err
		}
		return formatPolls(ps), nil

	case "chats":
		cs, err := a.chats.List(ctx)
		if err != nil {
			return "", err
		}
		return formatChats(cs), nil

	case "newpoll":
		p, err := ParseNewPoll(args, from)
		if err != nil {
			return "", err
		}
		if p.ChatID, err = a.chats.Resolve(ctx, p.ChatID); err != nil {
			return "", err
		}
		if err := a.svc.Create(ctx, p); err != nil {
			return "", err
		}
		return "Created:\n" + formatPoll(*p), nil

	case "delete":
		if args == "" {
			return "", errUsage
		}
		if err := a.svc.Delete(ctx, args); err != nil {
			return "", err
		}
		return fmt.Sprintf("Poll %q deleted.", args), nil

	case "pause":
		title, text, err := parseTitleAndRest(args)
		if err != nil {
			return "", err
		}
		p, err := a.svc.Pause(ctx, title, text)
		if err != nil {
			return "", err
		}
		return "Paused:\n" + formatPoll(*p), nil

	case "resume":
		title, text, err := parseTitleAndRest(args)
		if err != nil {
			return "", err
		}
		var p *models.Poll
		if strings.EqualFold(text, "clear") {
			p, err = a.svc.ClearPauses(ctx, title)
		} else {
			p, err = a.svc.Resume(ctx, title, text)
		}
		if err != nil {
			return "", err
		}
		return "Resumed:\n" + formatPoll(*p), nil

	case "sync":
		res, err := a.sync.Sync(ctx)
		if err != nil {
			return "", err
		}
		if res.Report.Err != nil {
			return "", res.Report.Err
		}
		return formatSync(res), nil

	case "clearcache":
		a.cache.Invalidate(ctx)
		return "Cache cleared.", nil
	}
	return "Unknown command.\n\n" + helpText, nil
}

func usageOf(cmd string) string {
	switch cmd {
	case "newpoll":
		return NewPollUsage
	case "delete":
		return "/delete title"
	case "pause":
		return "/pause title | 27.11-29.11, 31.12"
	case "resume":
		return "/resume title | 31.12 or /resume title | clear"
	}
	return helpText
}

func formatSync(res scheduler.SyncResult) string {
	var b strings.Builder
	if len(res.Added)+len(res.Removed) > 0 {
		fmt.Fprintf(&b, "Jobs added: %d, removed: %d\n", len(res.Added), len(res.Removed))
	}
	rep := res.Report
	fmt.Fprintf(&b, "Polls: %d, sent: %d, skipped: %d, closed: %d",
		rep.Polls, rep.Count(engine.KindSent), rep.Count(engine.KindSkipped), rep.Count(engine.KindClosed))
	if n := len(rep.Failures); n > 0 {
		fmt.Fprintf(&b, "\nFailed: %d", n)
		for _, f := range rep.Failures {
			fmt.Fprintf(&b, "\n  %s: %v", f.Title, f.Err)
		}
	}
	return b.String()
}
