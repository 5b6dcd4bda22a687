package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/salonhub/internal/model"
)

func nineToFive() []model.ShiftEntry {
	return []model.ShiftEntry{{Start: model.NewTimeOfDay(9, 0), End: model.NewTimeOfDay(17, 0)}}
}

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestWeekStart(t *testing.T) {
	assert.Equal(t, date(2023, time.December, 31, 0, 0), WeekStart(date(2024, time.January, 1, 15, 4)))
	assert.Equal(t, date(2023, time.December, 31, 0, 0), WeekStart(date(2023, time.December, 31, 0, 0)))
	assert.Equal(t, date(2023, time.December, 31, 0, 0), WeekStart(date(2024, time.January, 6, 23, 59)))
}

func TestGenerate_SingleWeekTwoWeekHorizon(t *testing.T) {
	tmpl := model.ShiftTemplate{
		0: {time.Monday: {Enabled: true, Shifts: nineToFive()}},
	}

	got := Generate("e1", tmpl, 1, 2, date(2024, time.January, 1, 0, 0))

	want := []model.GeneratedShift{
		{
			EmployeeID: "e1",
			StartTime:  date(2024, time.January, 1, 9, 0),
			EndTime:    date(2024, time.January, 1, 17, 0),
			Status:     model.ShiftStatusPending,
		},
		{
			EmployeeID: "e1",
			StartTime:  date(2024, time.January, 8, 9, 0),
			EndTime:    date(2024, time.January, 8, 17, 0),
			Status:     model.ShiftStatusPending,
		},
	}
	assert.Equal(t, want, got)
}

func TestGenerate_TwoWeekRotation(t *testing.T) {
	tmpl := model.ShiftTemplate{
		0: {time.Monday: {Enabled: true, Shifts: nineToFive()}},
		1: {time.Wednesday: {Enabled: true, Shifts: nineToFive()}},
	}

	got := Generate("e1", tmpl, 2, 4, date(2024, time.January, 1, 0, 0))
	require.Len(t, got, 4)

	var mondays, wednesdays []time.Time
	for _, s := range got {
		switch s.StartTime.Weekday() {
		case time.Monday:
			mondays = append(mondays, s.StartTime)
		case time.Wednesday:
			wednesdays = append(wednesdays, s.StartTime)
		default:
			t.Fatalf("unexpected shift on %s", s.StartTime.Weekday())
		}
	}

	assert.Equal(t, []time.Time{date(2024, time.January, 1, 9, 0), date(2024, time.January, 15, 9, 0)}, mondays)
	assert.Equal(t, []time.Time{date(2024, time.January, 10, 9, 0), date(2024, time.January, 24, 9, 0)}, wednesdays)
}

func TestGenerate_DisabledDayIgnoresShifts(t *testing.T) {
	tmpl := model.ShiftTemplate{
		0: {
			time.Sunday:  {Enabled: false, Shifts: nineToFive()},
			time.Tuesday: {Enabled: true, Shifts: nineToFive()},
		},
	}

	got := Generate("e1", tmpl, 1, 3, date(2024, time.January, 1, 0, 0))
	require.Len(t, got, 3)
	for _, s := range got {
		assert.Equal(t, time.Tuesday, s.StartTime.Weekday())
	}
}

func TestGenerate_DuplicatesAndOrder(t *testing.T) {
	morning := model.ShiftEntry{Start: model.NewTimeOfDay(8, 0), End: model.NewTimeOfDay(12, 0)}
	evening := model.ShiftEntry{Start: model.NewTimeOfDay(18, 0), End: model.NewTimeOfDay(22, 0)}
	tmpl := model.ShiftTemplate{
		0: {
			time.Saturday: {Enabled: true, Shifts: []model.ShiftEntry{evening}},
			time.Friday:   {Enabled: true, Shifts: []model.ShiftEntry{morning, morning, evening}},
		},
	}

	got := Generate("e2", tmpl, 1, 1, date(2024, time.March, 6, 12, 0))
	require.Len(t, got, 4)

	assert.Equal(t, date(2024, time.March, 8, 8, 0), got[0].StartTime)
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, date(2024, time.March, 8, 18, 0), got[2].StartTime)
	assert.Equal(t, date(2024, time.March, 9, 18, 0), got[3].StartTime)
}

func TestGenerate_HorizonNotMultipleOfRotation(t *testing.T) {
	tmpl := model.ShiftTemplate{
		0: {time.Monday: {Enabled: true, Shifts: nineToFive()}},
		1: {time.Monday: {Enabled: true, Shifts: nineToFive()}},
		2: {time.Monday: {Enabled: true, Shifts: nineToFive()}},
	}
	anchor := date(2024, time.January, 1, 0, 0)

	got := Generate("e1", tmpl, 3, 4, anchor)
	assert.Len(t, got, 6)

	from, to := CoveredRange(3, 4, anchor)
	assert.Equal(t, date(2023, time.December, 31, 0, 0), from)
	assert.Equal(t, from.AddDate(0, 0, 42), to)
	for _, s := range got {
		assert.False(t, s.StartTime.Before(from))
		assert.True(t, s.StartTime.Before(to))
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	tmpl := model.ShiftTemplate{
		0: {time.Thursday: {Enabled: true, Shifts: nineToFive()}},
		1: {time.Friday: {Enabled: true, Shifts: nineToFive()}},
	}
	anchor := date(2024, time.May, 2, 0, 0)

	first := Generate("e1", tmpl, 2, 8, anchor)
	second := Generate("e1", tmpl, 2, 8, anchor)
	assert.ElementsMatch(t, first, second)
}

func TestGenerate_EndBeforeStartIsKept(t *testing.T) {
	tmpl := model.ShiftTemplate{
		0: {time.Monday: {Enabled: true, Shifts: []model.ShiftEntry{
			{Start: model.NewTimeOfDay(22, 0), End: model.NewTimeOfDay(6, 0)},
		}}},
	}

	got := Generate("e1", tmpl, 1, 1, date(2024, time.January, 1, 0, 0))
	require.Len(t, got, 1)
	assert.True(t, got[0].EndTime.Before(got[0].StartTime))
}

func TestGenerate_InvalidWeeks(t *testing.T) {
	tmpl := model.ShiftTemplate{0: {time.Monday: {Enabled: true, Shifts: nineToFive()}}}
	anchor := date(2024, time.January, 1, 0, 0)

	assert.Empty(t, Generate("e1", tmpl, 0, 4, anchor))
	assert.Empty(t, Generate("e1", tmpl, 1, 0, anchor))

	from, to := CoveredRange(0, 4, anchor)
	assert.Equal(t, from, to)
}

func TestGenerate_KeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	tmpl := model.ShiftTemplate{0: {time.Monday: {Enabled: true, Shifts: nineToFive()}}}
	anchor := time.Date(2024, time.March, 25, 0, 0, 0, 0, loc)

	got := Generate("e1", tmpl, 1, 2, anchor)
	require.Len(t, got, 2)
	for _, s := range got {
		assert.Equal(t, 9, s.StartTime.Hour())
		assert.Equal(t, 17, s.EndTime.Hour())
	}
}
