package engine

import (
	"time"

	"github.com/nikitkaralius/weeklypoll/internal/dates"
	"github.com/nikitkaralius/weeklypoll/internal/models"
)

// Decision is what a single evaluation of a poll asks for.
type Decision struct {
	Send  bool
	Skip  bool
	Close bool
}

func (d Decision) None() bool { return !d.Send && !d.Skip && !d.Close }

// Decide evaluates p against now. Send and skip are exclusive; close is
// decided on the same state and never for a cycle started in this
// evaluation. A positive sendWindow limits how late after the send time a
// poll may still go out.
func Decide(p models.Poll, now dates.Moment, sendWindow time.Duration) Decision {
	var d Decision
	if p.SendsOn(now.Weekday) && !p.SentOn(now.Date) {
		late := now.TimeOfDay() - p.SendTime.Offset()
		switch {
		case p.SkipsOn(now.Date):
			d.Skip = true
		case late >= 0 && (sendWindow <= 0 || late <= sendWindow):
			d.Send = true
		}
	}
	d.Close = CloseDue(p, now)
	return d
}

// CloseDue reports whether answers on the last sent poll should be closed.
func CloseDue(p models.Poll, now dates.Moment) bool {
	if p.BlockAnswerDeltaHours <= 0 || p.IsBlocked || p.LastSendDate == nil {
		return false
	}
	return now.Time.After(CloseAt(p, now.Time.Location()))
}

// CloseAt is the instant after which the last sent poll is closed.
func CloseAt(p models.Poll, loc *time.Location) time.Time {
	if p.LastSendDate == nil {
		return time.Time{}
	}
	return p.SendTime.On(*p.LastSendDate, loc).Add(time.Duration(p.BlockAnswerDeltaHours) * time.Hour)
}
