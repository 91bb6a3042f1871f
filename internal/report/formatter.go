package report

import (
	"fmt"
	"sort"
	"time"

	"rancher-error-digest/internal/model"
)

const displayLayout = "2006-01-02 15:04:05"

// Formatter renders aggregate groups as chronological report lines with
// timestamps shifted by a flat offset from UTC.
type Formatter struct {
	zone *time.Location
}

func NewFormatter(offset time.Duration) *Formatter {
	return &Formatter{zone: time.FixedZone(zoneName(offset), int(offset/time.Second))}
}

// Format orders groups by first timestamp, ties by encounter order, and
// renders one line per group. It does not modify groups.
func (f *Formatter) Format(groups []model.AggregateGroup) []model.ReportLine {
	sorted := make([]model.AggregateGroup, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].FirstTimestamp.Equal(sorted[j].FirstTimestamp) {
			return sorted[i].FirstTimestamp.Before(sorted[j].FirstTimestamp)
		}
		return sorted[i].Order < sorted[j].Order
	})

	lines := make([]model.ReportLine, 0, len(sorted))
	for _, group := range sorted {
		lines = append(lines, model.ReportLine{
			Timestamp: group.FirstTimestamp,
			Text:      f.line(group),
		})
	}
	return lines
}

func (f *Formatter) line(group model.AggregateGroup) string {
	text := fmt.Sprintf("%s: %s --> %s",
		group.Severity,
		group.FirstTimestamp.In(f.zone).Format(displayLayout),
		group.Message,
	)
	if group.Count > 1 {
		text += fmt.Sprintf(" (%d occurrences)", group.Count)
	}
	return text
}

// Title is the heading shared by the file and channel outputs.
func Title(prefix string, windowMinutes int) string {
	return fmt.Sprintf("%s in the Last %d Minutes", prefix, windowMinutes)
}

func zoneName(offset time.Duration) string {
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, int(offset.Hours()), int(offset.Minutes())%60)
}
