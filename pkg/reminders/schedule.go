package reminders

import (
	"sort"
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// DueWindow is how far either side of a scheduled dose a check still reports it.
const DueWindow = 5 * time.Minute

var scheduleHours = map[model.Frequency][]int{
	model.FrequencyOnceDaily:       {9},
	model.FrequencyTwiceDaily:      {9, 21},
	model.FrequencyThreeTimesDaily: {9, 14, 21},
	model.FrequencyFourTimesDaily:  {8, 12, 16, 20},
	model.FrequencyWeekly:          {9},
	model.FrequencyMonthly:         {9},
}

// ScheduleHours returns the hours of day a frequency is taken at, or nil for an
// unknown frequency.
func ScheduleHours(f model.Frequency) []int {
	hours := scheduleHours[f]
	if hours == nil {
		return nil
	}
	return append([]int(nil), hours...)
}

// Due returns the doses scheduled within DueWindow of now, ordered by due time
// then medication name. Hours and the current day are read in now's location.
// Weekly doses fall on the start date's weekday and monthly doses on its day of
// the month, or the month's last day when it is shorter.
func Due(meds []model.Medication, now time.Time) []model.Reminder {
	var out []model.Reminder
	for _, m := range meds {
		if !m.ActiveOn(now) || !onScheduleDay(m, now) {
			continue
		}
		for _, h := range scheduleHours[m.Frequency] {
			at := time.Date(now.Year(), now.Month(), now.Day(), h, 0, 0, 0, now.Location())
			if d := now.Sub(at); d >= -DueWindow && d <= DueWindow {
				out = append(out, model.Reminder{Medication: m, DueAt: at})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].DueAt.Before(out[j].DueAt)
		}
		return out[i].Medication.Name < out[j].Medication.Name
	})
	return out
}

func onScheduleDay(m model.Medication, now time.Time) bool {
	// StartDate is a calendar date held at UTC midnight.
	start := m.StartDate.UTC()
	switch m.Frequency {
	case model.FrequencyWeekly:
		return now.Weekday() == start.Weekday()
	case model.FrequencyMonthly:
		day := start.Day()
		if last := daysIn(now.Year(), now.Month(), now.Location()); day > last {
			day = last
		}
		return now.Day() == day
	}
	return true
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
