// Package rotation разворачивает повторяющийся недельный шаблон смен
// в конкретные смены сотрудника на заданный горизонт планирования.
package rotation

import (
	"time"

	"github.com/mmeshcher/salonhub/internal/model"
)

const daysPerWeek = 7

// WeekStart возвращает полночь воскресенья, с которого начинается неделя t, в часовом поясе t.
func WeekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

func cycles(totalWeeks, horizonWeeks int) int {
	return (horizonWeeks + totalWeeks - 1) / totalWeeks
}

// Generate разворачивает шаблон из totalWeeks недель, повторяя его до тех пор,
// пока не будет покрыто horizonWeeks недель начиная с недели anchor.
// Порядок результата: цикл, неделя шаблона, день недели с воскресенья, смена внутри дня.
// Выключенные дни пропускаются целиком, одинаковые смены не схлопываются.
func Generate(employeeID string, template model.ShiftTemplate, totalWeeks, horizonWeeks int, anchor time.Time) []model.GeneratedShift {
	shifts := []model.GeneratedShift{}
	if totalWeeks <= 0 || horizonWeeks <= 0 {
		return shifts
	}

	start := WeekStart(anchor)
	n := cycles(totalWeeks, horizonWeeks)

	for cycle := 0; cycle < n; cycle++ {
		for week := 0; week < totalWeeks; week++ {
			weekStart := start.AddDate(0, 0, (cycle*totalWeeks+week)*daysPerWeek)

			for d := 0; d < daysPerWeek; d++ {
				day := template.Day(week, time.Weekday(d))
				if !day.Enabled {
					continue
				}

				date := weekStart.AddDate(0, 0, d)
				for _, entry := range day.Shifts {
					shifts = append(shifts, model.GeneratedShift{
						EmployeeID: employeeID,
						StartTime:  at(date, entry.Start),
						EndTime:    at(date, entry.End),
						Status:     model.ShiftStatusPending,
					})
				}
			}
		}
	}

	return shifts
}

// CoveredRange возвращает полуинтервал [from, to), который покрывает Generate
// с теми же параметрами. В нём заменяются ранее созданные смены.
func CoveredRange(totalWeeks, horizonWeeks int, anchor time.Time) (time.Time, time.Time) {
	from := WeekStart(anchor)
	if totalWeeks <= 0 || horizonWeeks <= 0 {
		return from, from
	}

	weeks := cycles(totalWeeks, horizonWeeks) * totalWeeks
	return from, from.AddDate(0, 0, weeks*daysPerWeek)
}

func at(date time.Time, tod model.TimeOfDay) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), tod.Hour(), tod.Minute(), 0, 0, date.Location())
}
