package components

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mergestat/timediff"
)

// FormatRelativeTime formats a time.Time as a relative time string like "3 hours ago"
func FormatRelativeTime(t time.Time) string {
	return timediff.TimeDiff(t)
}

// FormatFileSize formats a file size in bytes to a human-readable string
func FormatFileSize(bytes uint64) string {
	return humanize.Bytes(bytes)
}

// FormatTimestamp formats a reading timestamp the way it is stored.
func FormatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// FormatPercent formats a percentage with one decimal.
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

// FormatCount formats a number with thousands separators.
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}
