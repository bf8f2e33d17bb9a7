package util

import (
	"strings"
	"time"
)

// dateTokens is ordered so that longer placeholders are replaced before
// their prefixes (YYYY before YY).
var dateTokens = []struct{ tpl, layout string }{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"hh", "15"},
	{"mm", "04"},
	{"ss", "05"},
}

// FormatTpl formats t using a template with placeholders.
//
// Supported placeholders:
// - YYYY: 4-digit year
// - YY: 2-digit year
// - MM: 2-digit month (01-12)
// - DD: 2-digit day (01-31)
// - hh: 2-digit hour (00-23)
// - mm: 2-digit minute (00-59)
// - ss: 2-digit second (00-59)
//
// A zero t yields an empty string.
//
// Example:
//
//	FormatTpl(t, "YYYY.MM.DD")       // "2023.11.10"
//	FormatTpl(t, "YYYY-MM-DD hh:mm") // "2023-11-10 00:00"
func FormatTpl(t time.Time, tpl string) string {
	if t.IsZero() {
		return ""
	}
	goTpl := tpl
	for _, r := range dateTokens {
		goTpl = strings.ReplaceAll(goTpl, r.tpl, r.layout)
	}
	return t.Format(goTpl)
}

// FormatDateTpl is FormatTpl for a timestamp in milliseconds since the Unix epoch.
// An empty string is returned if ts == 0.
func FormatDateTpl(ts int64, tpl string) string {
	if ts == 0 {
		return ""
	}
	return FormatTpl(time.UnixMilli(ts), tpl)
}

// HumanDuration renders d rounded to seconds, e.g. "2m30s".
func HumanDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Round(time.Second).String()
}
