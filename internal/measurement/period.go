package measurement

import "time"

// Period is the calendar unit a cumulative counter resets at
type Period int

const (
	PeriodNone Period = iota
	PeriodDay
	PeriodWeek
	PeriodMonth
	PeriodYear
)

func (p Period) String() string {
	switch p {
	case PeriodDay:
		return "day"
	case PeriodWeek:
		return "week"
	case PeriodMonth:
		return "month"
	case PeriodYear:
		return "year"
	default:
		return "none"
	}
}

// Start truncates t to the beginning of its period in t's location.
// Weeks start on Monday.
func (p Period) Start(t time.Time) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch p {
	case PeriodDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case PeriodWeek:
		offset := (int(t.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case PeriodYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return t
	}
}

// Next returns the start of the period following the one containing t
func (p Period) Next(t time.Time) time.Time {
	start := p.Start(t)
	switch p {
	case PeriodDay:
		return start.AddDate(0, 0, 1)
	case PeriodWeek:
		return start.AddDate(0, 0, 7)
	case PeriodMonth:
		return start.AddDate(0, 1, 0)
	case PeriodYear:
		return start.AddDate(1, 0, 0)
	default:
		return t
	}
}

// IsBoundary reports whether t is exactly a period start
func (p Period) IsBoundary(t time.Time) bool {
	return p != PeriodNone && p.Start(t).Equal(t)
}

// Resolution returns the storage tier holding exactly one sample per period,
// if there is one
func (p Period) Resolution() (Resolution, bool) {
	switch p {
	case PeriodDay:
		return Daily, true
	case PeriodWeek:
		return Weekly, true
	case PeriodMonth:
		return Monthly, true
	default:
		return 0, false
	}
}
