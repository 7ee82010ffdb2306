package analytics

import (
	"errors"
	"fmt"
	"time"
)

// Window is the half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Previous is the window of equal length ending where w starts.
func (w Window) Previous() Window {
	return Window{Start: w.Start.Add(-w.Duration()), End: w.Start}
}

// WindowFor maps a dashboard time range to the window ending at now. An
// empty range means a week.
func WindowFor(timeRange string, now time.Time) (Window, error) {
	switch timeRange {
	case "", "week":
		return Window{Start: now.AddDate(0, 0, -7), End: now}, nil
	case "month":
		return Window{Start: now.AddDate(0, -1, 0), End: now}, nil
	case "year":
		return Window{Start: now.AddDate(-1, 0, 0), End: now}, nil
	}
	return Window{}, fmt.Errorf("%w: timeRange must be week, month or year, got %q", ErrInvalidWindow, timeRange)
}

const dateLayout = "2006-01-02"

// ErrInvalidWindow marks a malformed time range, date or grouping.
var ErrInvalidWindow = errors.New("invalid reporting window")

// ParseWindow reads start and end dates (YYYY-MM-DD or RFC 3339). A bare end
// date includes that whole day. Missing bounds default to the 30 days
// before now.
func ParseWindow(start, end string, now time.Time) (Window, error) {
	w := Window{Start: now.AddDate(0, 0, -30), End: now}

	if start != "" {
		t, _, err := parseTime(start)
		if err != nil {
			return Window{}, fmt.Errorf("%w: start must be YYYY-MM-DD or RFC 3339", ErrInvalidWindow)
		}
		w.Start = t
	}
	if end != "" {
		t, dateOnly, err := parseTime(end)
		if err != nil {
			return Window{}, fmt.Errorf("%w: end must be YYYY-MM-DD or RFC 3339", ErrInvalidWindow)
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1)
		}
		w.End = t
	}

	if !w.End.After(w.Start) {
		return Window{}, fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	return w, nil
}

func parseTime(s string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}
