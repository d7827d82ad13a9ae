package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nikitkaralius/weeklypoll/internal/models"
	"github.com/nikitkaralius/weeklypoll/internal/polls"
)

const NewPollUsage = "/newpoll title | chat title or id | topic | option 1; option 2 | mon,wed | 14:00 [| anonymous yes/no | multiple yes/no | close after hours]"

var errUsage = errors.New("usage")

// splitArgs splits "a | b | c" into trimmed fields.
func splitArgs(s string) []string {
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseNewPoll builds a poll from the arguments of /newpoll.
func ParseNewPoll(args string, createdBy int64) (*models.Poll, error) {
	f := splitArgs(args)
	if len(f) < 6 || len(f) > 9 {
		return nil, errUsage
	}

	var options []string
	for _, o := range strings.Split(f[3], ";") {
		if o = strings.TrimSpace(o); o != "" {
			options = append(options, o)
		}
	}
	days, err := models.ParseWeekdays(f[4])
	if err != nil {
		return nil, &polls.ValidationError{Field: "weekdays", Reason: err.Error()}
	}
	at, err := models.ParseSendTime(f[5])
	if err != nil {
		return nil, &polls.ValidationError{Field: "time", Reason: "expected HH:MM"}
	}

	p := &models.Poll{
		Title:                 f[0],
		ChatID:                f[1],
		Topic:                 f[2],
		Options:               options,
		Weekdays:              days,
		SendTime:              at,
		SkipDates:             []string{},
		BlockAnswerDeltaHours: polls.DefaultDelta,
		CreatedBy:             createdBy,
	}
	if len(f) > 6 {
		if p.IsAnonymous, err = parseYesNo("anonymous", f[6]); err != nil {
			return nil, err
		}
	}
	if len(f) > 7 {
		if p.AllowsMultipleAnswers, err = parseYesNo("multiple", f[7]); err != nil {
			return nil, err
		}
	}
	if len(f) > 8 {
		h, err := strconv.Atoi(f[8])
		if err != nil {
			return nil, &polls.ValidationError{Field: "close after hours", Reason: "not a number"}
		}
		p.BlockAnswerDeltaHours = h
	}
	return p, nil
}

func parseYesNo(field, s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y", "да", "true", "1":
		return true, nil
	case "no", "n", "нет", "false", "0", "":
		return false, nil
	}
	return false, &polls.ValidationError{Field: field, Reason: fmt.Sprintf("expected yes or no, got %q", s)}
}

// parseTitleAndRest splits "title | rest" used by /pause and /resume.
func parseTitleAndRest(args string) (string, string, error) {
	title, rest, ok := strings.Cut(args, "|")
	title, rest = strings.TrimSpace(title), strings.TrimSpace(rest)
	if !ok || title == "" || rest == "" {
		return "", "", errUsage
	}
	return title, rest, nil
}

func formatPoll(p models.Poll) string {
	var b strings.Builder
	days := make([]string, len(p.Weekdays))
	for i, wd := range p.Weekdays {
		days[i] = string(wd)
	}
	fmt.Fprintf(&b, "• %s → %s\n  %s at %s", p.Title, p.ChatID, strings.Join(days, ","), p.SendTime)
	if p.BlockAnswerDeltaHours > 0 {
		fmt.Fprintf(&b, ", closes after %dh", p.BlockAnswerDeltaHours)
	}
	if len(p.SkipDates) > 0 {
		fmt.Fprintf(&b, "\n  paused: %s", strings.Join(p.SkipDates, ", "))
	}
	if p.LastSendDate != nil {
		state := "open"
		if p.IsBlocked {
			state = "closed"
		}
		fmt.Fprintf(&b, "\n  last sent %s (%s)", p.LastSendDate, state)
	}
	return b.String()
}

func formatChats(cs []models.Chat) string {
	if len(cs) == 0 {
		return "The bot is not in any chat yet. Add it to a group or channel first."
	}
	lines := make([]string, len(cs))
	for i, c := range cs {
		lines[i] = fmt.Sprintf("• %s (%s)", c.Title, c.ID)
	}
	return strings.Join(lines, "\n")
}

func formatPolls(ps []models.Poll) string {
	if len(ps) == 0 {
		return "No polls yet. Create one with " + NewPollUsage
	}
	lines := make([]string, len(ps))
	for i, p := range ps {
		lines[i] = formatPoll(p)
	}
	return strings.Join(lines, "\n\n")
}
