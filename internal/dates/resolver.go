package dates

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

const DefaultZone = "Europe/Moscow"

// Moment is "now" decomposed in the operating time zone.
type Moment struct {
	Time    time.Time
	Date    models.Date
	Weekday models.Weekday
}

func (m Moment) DateISO() string { return m.Date.String() }

// TimeOfDay is the time elapsed since local midnight, sub-second precision.
func (m Moment) TimeOfDay() time.Duration {
	h, mm, s := m.Time.Clock()
	return time.Duration(h)*time.Hour + time.Duration(mm)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(m.Time.Nanosecond())
}

// Resolver reads the clock in a fixed IANA zone.
type Resolver struct {
	loc   *time.Location
	clock clockwork.Clock
}

func NewResolver(zone string, clock clockwork.Clock) (*Resolver, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{loc: loc, clock: clock}, nil
}

func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) Clock() clockwork.Clock { return r.clock }

func (r *Resolver) Now() Moment {
	return At(r.clock.Now(), r.loc)
}

// At builds the Moment for t seen from loc.
func At(t time.Time, loc *time.Location) Moment {
	local := t.In(loc)
	return Moment{
		Time:    local,
		Date:    models.DateOf(local),
		Weekday: models.WeekdayOf(local),
	}
}

// ParseExceptionDates parses text relative to the current local date.
func (r *Resolver) ParseExceptionDates(text string) ([]string, error) {
	ds, err := ParseExceptionDates(text, r.Now().Date)
	if err != nil {
		return nil, err
	}
	return Strings(ds), nil
}
