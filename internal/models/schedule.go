package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Weekday is a lowercase three-letter English day abbreviation ("mon".."sun").
type Weekday string

const (
	Monday    Weekday = "mon"
	Tuesday   Weekday = "tue"
	Wednesday Weekday = "wed"
	Thursday  Weekday = "thu"
	Friday    Weekday = "fri"
	Saturday  Weekday = "sat"
	Sunday    Weekday = "sun"
)

var AllWeekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Admins type days in Russian as often as in English.
var russianWeekdays = map[string]Weekday{
	"пн": Monday,
	"вт": Tuesday,
	"ср": Wednesday,
	"чт": Thursday,
	"пт": Friday,
	"сб": Saturday,
	"вс": Sunday,
}

func WeekdayOf(t time.Time) Weekday {
	return Weekday(strings.ToLower(t.Weekday().String()[:3]))
}

func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if wd, ok := russianWeekdays[s]; ok {
		return wd, nil
	}
	for _, wd := range AllWeekdays {
		if string(wd) == s {
			return wd, nil
		}
	}
	return "", fmt.Errorf("unknown weekday %q", s)
}

// ParseWeekdays parses a comma separated list, dropping duplicates and
// keeping the week order.
func ParseWeekdays(s string) ([]Weekday, error) {
	seen := map[Weekday]bool{}
	for _, part := range strings.Split(s, ",") {
		wd, err := ParseWeekday(part)
		if err != nil {
			return nil, err
		}
		seen[wd] = true
	}
	var res []Weekday
	for _, wd := range AllWeekdays {
		if seen[wd] {
			res = append(res, wd)
		}
	}
	return res, nil
}

func (wd Weekday) TimeWeekday() (time.Weekday, bool) {
	for i, d := range []Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday} {
		if d == wd {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

var sendTimeRx = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// SendTime is the time of day a poll is sent, minute precision.
type SendTime struct {
	Hour   int
	Minute int
}

func ParseSendTime(s string) (SendTime, error) {
	m := sendTimeRx.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return SendTime{}, fmt.Errorf("send time %q: want HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return SendTime{}, fmt.Errorf("send time %q out of range", s)
	}
	return SendTime{Hour: h, Minute: mm}, nil
}

func (t SendTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Offset is the duration since midnight.
func (t SendTime) Offset() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute
}

// On returns the instant t happens on day d in loc.
func (t SendTime) On(d Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, t.Hour, t.Minute, 0, 0, loc)
}

func (t SendTime) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *SendTime) UnmarshalText(b []byte) error {
	parsed, err := ParseSendTime(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
