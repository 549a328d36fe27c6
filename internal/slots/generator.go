// Package slots turns a weekly schedule into bookable time windows.
package slots

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"testdrive/internal/schedule"
)

// DefaultSlotMinutes is the hourly grid used when no duration is configured.
const DefaultSlotMinutes = 60

// TimeSlot is a candidate window on a calendar date. It is never persisted on its own.
type TimeSlot struct {
	Date  time.Time      `json:"date"`
	Start schedule.Clock `json:"start_time"`
	End   schedule.Clock `json:"end_time"`
}

// Label renders the slot the way the booking form shows it, "09:00 - 10:00".
func (s TimeSlot) Label() string {
	return fmt.Sprintf("%s - %s", s.Start, s.End)
}

func (s TimeSlot) String() string {
	return fmt.Sprintf("%s %s-%s", s.Date.Format(schedule.DateLayout), s.Start, s.End)
}

// StartIn returns the absolute start instant of the slot in loc.
func (s TimeSlot) StartIn(loc *time.Location) time.Time {
	return s.Start.On(s.Date, loc)
}

// Overlaps applies the half-open rule [s1,e1) x [s2,e2).
func (s TimeSlot) Overlaps(start, end schedule.Clock) bool {
	return Overlapping(s.Start, s.End, start, end)
}

// Overlapping reports whether [start1,end1) and [start2,end2) intersect.
func Overlapping(start1, end1, start2, end2 schedule.Clock) bool {
	return start1 < end2 && start2 < end1
}

// Generate yields the slots of date under sched. The sequence is recomputed on every
// range, so it can be iterated any number of times with the same result.
// A closed day yields nothing; a trailing window shorter than slotMinutes is dropped.
func Generate(date time.Time, sched schedule.WeeklySchedule, slotMinutes int) iter.Seq[TimeSlot] {
	if slotMinutes <= 0 {
		slotMinutes = DefaultSlotMinutes
	}
	day := schedule.DateOf(date)

	return func(yield func(TimeSlot) bool) {
		open, closing, ok := sched.WindowFor(schedule.WeekdayOf(day))
		if !ok {
			return
		}
		for cursor := open; cursor.AddMinutes(slotMinutes) <= closing; cursor = cursor.AddMinutes(slotMinutes) {
			slot := TimeSlot{Date: day, Start: cursor, End: cursor.AddMinutes(slotMinutes)}
			if !yield(slot) {
				return
			}
		}
	}
}

// GenerateSlots collects Generate into a slice.
func GenerateSlots(date time.Time, sched schedule.WeeklySchedule, slotMinutes int) []TimeSlot {
	return slices.Collect(Generate(date, sched, slotMinutes))
}

// FindConsecutive groups back-to-back slots. Input order does not matter.
func FindConsecutive(slots []TimeSlot) [][]TimeSlot {
	if len(slots) == 0 {
		return nil
	}

	sorted := slices.Clone(slots)
	slices.SortFunc(sorted, func(a, b TimeSlot) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return int(a.Start - b.Start)
	})

	var groups [][]TimeSlot
	current := []TimeSlot{sorted[0]}
	for _, s := range sorted[1:] {
		last := current[len(current)-1]
		if s.Date.Equal(last.Date) && s.Start == last.End {
			current = append(current, s)
			continue
		}
		groups = append(groups, current)
		current = []TimeSlot{s}
	}
	return append(groups, current)
}

// DurationOptions lists the booking lengths, in minutes, that fit into the run of
// consecutive slots beginning at start.
func DurationOptions(slots []TimeSlot, start schedule.Clock, slotMinutes int) []int {
	for _, run := range FindConsecutive(slots) {
		idx := slices.IndexFunc(run, func(s TimeSlot) bool { return s.Start == start })
		if idx < 0 {
			continue
		}
		options := make([]int, 0, len(run)-idx)
		for i := range run[idx:] {
			options = append(options, (i+1)*slotMinutes)
		}
		return options
	}
	return nil
}

// FormatDuration renders minutes as "30 min", "1 h" or "1 h 30 min".
func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours, mins := minutes/60, minutes%60
	if mins == 0 {
		return fmt.Sprintf("%d h", hours)
	}
	return fmt.Sprintf("%d h %d min", hours, mins)
}
