package quota

import "time"

// Window is the reset granularity of a counter.
type Window int

const (
	// Daily windows reset when the server's local date changes.
	Daily Window = iota
	// Hourly windows reset at the top of each local hour.
	Hourly
)

// Key returns the period label containing t, in t's location.
func (w Window) Key(t time.Time) string {
	switch w {
	case Hourly:
		return t.Format("2006-01-02T15")
	default:
		return t.Format("2006-01-02")
	}
}

// Duration returns the nominal window length.
func (w Window) Duration() time.Duration {
	if w == Hourly {
		return time.Hour
	}
	return 24 * time.Hour
}

func (w Window) String() string {
	if w == Hourly {
		return "hour"
	}
	return "day"
}
