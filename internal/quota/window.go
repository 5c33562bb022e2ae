package quota

import "time"

const dateLayout = "2006-01-02"

// Window maps instants onto quota days in one fixed location.
type Window struct {
	loc *time.Location
}

// NewWindow returns a window anchored to loc. A nil loc means UTC.
func NewWindow(loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	return Window{loc: loc}
}

// Location returns the window's timezone.
func (w Window) Location() *time.Location {
	if w.loc == nil {
		return time.UTC
	}
	return w.loc
}

// Day returns the quota day containing now.
func (w Window) Day(now time.Time) string {
	return now.In(w.Location()).Format(dateLayout)
}

// ResetAt returns the start of the next quota day.
func (w Window) ResetAt(now time.Time) time.Time {
	local := now.In(w.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, w.Location())
}

// ResetAtForDay returns the end of the given day, or the zero time if
// day does not parse.
func (w Window) ResetAtForDay(day string) time.Time {
	t, err := time.ParseInLocation(dateLayout, day, w.Location())
	if err != nil {
		return time.Time{}
	}
	return t.AddDate(0, 0, 1)
}
