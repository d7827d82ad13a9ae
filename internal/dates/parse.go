package dates

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

var ErrMalformedDate = errors.New("malformed date")

// ParseError reports the token that could not be parsed.
type ParseError struct {
	Token  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Token, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrMalformedDate }

// A D.M token may fall on Feb 29, so look that far ahead at most.
const maxYearLookahead = 8

// ParseExceptionDates converts "DD.MM, DD.MM-DD.MM" text into dates, each
// resolved to its nearest occurrence not before today. Ranges whose end
// resolves before the start roll the end into the following year(s). The
// result is sorted and may contain duplicates.
func ParseExceptionDates(text string, today models.Date) ([]models.Date, error) {
	var res []models.Date
	for _, raw := range strings.Split(text, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			return nil, &ParseError{Token: raw, Reason: "empty item"}
		}

		if !strings.Contains(token, "-") {
			d, err := parseDayMonth(token, today)
			if err != nil {
				return nil, err
			}
			res = append(res, d)
			continue
		}

		ds, err := parseRange(token, today)
		if err != nil {
			return nil, err
		}
		res = append(res, ds...)
	}

	slices.SortFunc(res, compare)
	return res, nil
}

func parseRange(token string, today models.Date) ([]models.Date, error) {
	parts := strings.Split(token, "-")
	if len(parts) != 2 {
		return nil, &ParseError{Token: token, Reason: "range must have exactly one '-'"}
	}
	start, err := parseDayMonth(strings.TrimSpace(parts[0]), today)
	if err != nil {
		return nil, err
	}
	end, err := parseDayMonth(strings.TrimSpace(parts[1]), today)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		end, err = nearest(end.Day, end.Month, start)
		if err != nil {
			return nil, &ParseError{Token: token, Reason: err.Error()}
		}
	}

	var ds []models.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		ds = append(ds, d)
	}
	return ds, nil
}

func parseDayMonth(token string, today models.Date) (models.Date, error) {
	day, month, ok := strings.Cut(token, ".")
	if !ok {
		return models.Date{}, &ParseError{Token: token, Reason: "want DD.MM"}
	}
	d, err := strconv.Atoi(strings.TrimSpace(day))
	if err != nil {
		return models.Date{}, &ParseError{Token: token, Reason: "day is not a number"}
	}
	m, err := strconv.Atoi(strings.TrimSpace(month))
	if err != nil {
		return models.Date{}, &ParseError{Token: token, Reason: "month is not a number"}
	}
	res, err := nearest(d, time.Month(m), today)
	if err != nil {
		return models.Date{}, &ParseError{Token: token, Reason: err.Error()}
	}
	return res, nil
}

// nearest returns the first valid day.month not before notBefore, starting
// from notBefore's year.
func nearest(day int, month time.Month, notBefore models.Date) (models.Date, error) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return models.Date{}, errors.New("no such calendar date")
	}
	for y := notBefore.Year; y <= notBefore.Year+maxYearLookahead; y++ {
		d := models.Date{Year: y, Month: month, Day: day}
		if !valid(d) || d.Before(notBefore) {
			continue
		}
		return d, nil
	}
	return models.Date{}, errors.New("no such calendar date")
}

func valid(d models.Date) bool {
	return models.DateOf(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)) == d
}

func compare(a, b models.Date) int {
	switch {
	case a.Before(b):
		return -1
	case b.Before(a):
		return 1
	}
	return 0
}

func Strings(ds []models.Date) []string {
	res := make([]string, len(ds))
	for i, d := range ds {
		res[i] = d.String()
	}
	return res
}

// MergeDates adds ISO dates to existing ones, sorted and without duplicates.
func MergeDates(existing, added []string) []string {
	res := make([]string, 0, len(existing)+len(added))
	res = append(res, existing...)
	res = append(res, added...)
	slices.Sort(res)
	return slices.Compact(res)
}

// RemoveDates drops the given ISO dates from existing, keeping the order.
func RemoveDates(existing, removed []string) []string {
	res := make([]string, 0, len(existing))
	for _, d := range existing {
		if !slices.Contains(removed, d) {
			res = append(res, d)
		}
	}
	return res
}
