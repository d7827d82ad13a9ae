package models

import "slices"

// Poll is a recurring poll definition together with its delivery state.
type Poll struct {
	ID                    int64     `json:"id"`
	Title                 string    `json:"title"`
	ChatID                string    `json:"chat_id"`
	Topic                 string    `json:"topic"`
	Options               []string  `json:"options"`
	IsAnonymous           bool      `json:"is_anonymous"`
	AllowsMultipleAnswers bool      `json:"allows_multiple_answers"`
	Weekdays              []Weekday `json:"weekdays"`
	SendTime              SendTime  `json:"send_time"`
	SkipDates             []string  `json:"skip_dates"`
	BlockAnswerDeltaHours int       `json:"block_answer_delta_hours"`
	CreatedBy             int64     `json:"created_by"`

	// Delivery state, written by the scheduling engine only.
	LastSendDate *Date `json:"last_send_date,omitempty"`
	MessageID    *int  `json:"message_id,omitempty"`
	IsBlocked    bool  `json:"is_blocked"`
}

func (p *Poll) SendsOn(wd Weekday) bool {
	return slices.Contains(p.Weekdays, wd)
}

func (p *Poll) SkipsOn(d Date) bool {
	return slices.Contains(p.SkipDates, d.String())
}

func (p *Poll) SentOn(d Date) bool {
	return p.LastSendDate != nil && *p.LastSendDate == d
}

// PollUpdate lists the fields to change; nil fields are left untouched.
type PollUpdate struct {
	SkipDates    *[]string
	LastSendDate *Date
	MessageID    *int
	IsBlocked    *bool

	// UnlessSentOn makes the update conditional on the stored
	// last_send_date being different from the given day.
	UnlessSentOn *Date
	// OnlySentOn and OnlyMessageID make the update conditional on the
	// stored delivery still being the one sent on that day with that
	// message.
	OnlySentOn    *Date
	OnlyMessageID *int
}

func (u PollUpdate) Empty() bool {
	return u.SkipDates == nil && u.LastSendDate == nil && u.MessageID == nil && u.IsBlocked == nil
}

// Guarded reports whether the update only applies to the delivery it was
// built for.
func (u PollUpdate) Guarded() bool {
	return u.OnlySentOn != nil || u.OnlyMessageID != nil
}

func Ptr[T any](v T) *T { return &v }
