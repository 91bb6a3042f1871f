package dto

import (
	"time"

	"rancher-error-digest/internal/model"
)

type DigestResponse struct {
	RunID         string         `json:"runId"`
	StartedAt     time.Time      `json:"startedAt"`
	WindowMinutes int            `json:"windowMinutes"`
	Title         string         `json:"title"`
	Lines         []DigestLine   `json:"lines"`
	Stats         model.RunStats `json:"stats"`
}

type DigestLine struct {
	Timestamp int64  `json:"timestamp"` // Epoch Milliseconds
	Text      string `json:"text"`
}

// NewDigestResponse keeps only the lines whose representative timestamp is
// not before since. A zero since keeps every line.
func NewDigestResponse(digest model.Digest, since time.Time) DigestResponse {
	lines := make([]DigestLine, 0, len(digest.Lines))
	for _, line := range digest.Lines {
		if !since.IsZero() && line.Timestamp.Before(since) {
			continue
		}
		lines = append(lines, DigestLine{
			Timestamp: line.Timestamp.UnixMilli(),
			Text:      line.Text,
		})
	}
	return DigestResponse{
		RunID:         digest.RunID,
		StartedAt:     digest.StartedAt,
		WindowMinutes: digest.WindowMinutes,
		Title:         digest.Title,
		Lines:         lines,
		Stats:         digest.Stats,
	}
}
