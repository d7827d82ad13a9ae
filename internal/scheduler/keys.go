package scheduler

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/nikitkaralius/weeklypoll/internal/models"
)

const keyPrefix = "poll"

// JobKey identifies one weekly firing of one poll. It doubles as the gocron
// tag of the registered job.
type JobKey struct {
	PollID  int64
	Weekday models.Weekday
	Hour    int
	Minute  int
}

func (k JobKey) String() string {
	return fmt.Sprintf("%s:%d:%s:%02d:%02d", keyPrefix, k.PollID, k.Weekday, k.Hour, k.Minute)
}

// ParseJobKey reverses JobKey.String. ok is false for tags of other jobs.
func ParseJobKey(tag string) (JobKey, bool) {
	parts := strings.Split(tag, ":")
	if len(parts) != 5 || parts[0] != keyPrefix {
		return JobKey{}, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return JobKey{}, false
	}
	wd, err := models.ParseWeekday(parts[2])
	if err != nil {
		return JobKey{}, false
	}
	h, err1 := strconv.Atoi(parts[3])
	m, err2 := strconv.Atoi(parts[4])
	if err1 != nil || err2 != nil {
		return JobKey{}, false
	}
	return JobKey{PollID: id, Weekday: wd, Hour: h, Minute: m}, true
}

// DesiredJobs lists the firings the given polls need, one per weekday.
func DesiredJobs(ps []models.Poll) []JobKey {
	var keys []JobKey
	for _, p := range ps {
		for _, wd := range p.Weekdays {
			keys = append(keys, JobKey{PollID: p.ID, Weekday: wd, Hour: p.SendTime.Hour, Minute: p.SendTime.Minute})
		}
	}
	sortKeys(keys)
	return slices.Compact(keys)
}

// Diff returns the keys to register and the keys to drop so that actual
// becomes desired. Keys are compared by value.
func Diff(desired, actual []JobKey) (add, remove []JobKey) {
	want := make(map[JobKey]struct{}, len(desired))
	for _, k := range desired {
		want[k] = struct{}{}
	}
	have := make(map[JobKey]struct{}, len(actual))
	for _, k := range actual {
		have[k] = struct{}{}
		if _, ok := want[k]; !ok {
			remove = append(remove, k)
		}
	}
	for _, k := range desired {
		if _, ok := have[k]; !ok {
			add = append(add, k)
		}
	}
	sortKeys(add)
	sortKeys(remove)
	return slices.Compact(add), slices.Compact(remove)
}

func sortKeys(keys []JobKey) {
	slices.SortFunc(keys, func(a, b JobKey) int {
		return cmp.Or(
			cmp.Compare(a.PollID, b.PollID),
			cmp.Compare(weekdayIndex(a.Weekday), weekdayIndex(b.Weekday)),
			cmp.Compare(a.Hour, b.Hour),
			cmp.Compare(a.Minute, b.Minute),
		)
	})
}

func weekdayIndex(wd models.Weekday) int {
	return slices.Index(models.AllWeekdays, wd)
}
