package model

import "time"

// AggregateGroup collects every in-window occurrence of one normalized
// message. FirstTimestamp and Severity come from the first occurrence seen.
type AggregateGroup struct {
	Message        string    `json:"message"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	Severity       Severity  `json:"severity"`
	Count          int       `json:"count"`
	Order          int       `json:"-"`
}

type ReportLine struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

type RunStats struct {
	Sources         int `json:"sources"`
	LinesScanned    int `json:"lines_scanned"`
	EntriesMatched  int `json:"entries_matched"`
	EntriesInWindow int `json:"entries_in_window"`
	Groups          int `json:"groups"`
	Errors          int `json:"errors"`
	Warnings        int `json:"warnings"`
}

// Digest is the outcome of one run.
type Digest struct {
	RunID         string       `json:"run_id"`
	StartedAt     time.Time    `json:"started_at"`
	WindowMinutes int          `json:"window_minutes"`
	Title         string       `json:"title"`
	Lines         []ReportLine `json:"lines"`
	Stats         RunStats     `json:"stats"`
}

func (d Digest) Empty() bool {
	return len(d.Lines) == 0
}

// Texts returns the formatted report lines in order.
func (d Digest) Texts() []string {
	texts := make([]string, len(d.Lines))
	for i, line := range d.Lines {
		texts[i] = line.Text
	}
	return texts
}
