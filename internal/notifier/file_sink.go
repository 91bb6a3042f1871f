package notifier

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"rancher-error-digest/internal/model"
)

type fileSink struct {
	filePath string
}

// NewFileSink writes each digest to filePath, replacing the previous one.
func NewFileSink(filePath string) Sink {
	return &fileSink{filePath: filePath}
}

func (s *fileSink) Name() string { return "file" }

func (s *fileSink) Deliver(ctx context.Context, digest model.Digest) error {
	log.Info().Str("file", s.filePath).Msg("Saving to local file...")

	var b strings.Builder
	b.WriteString(digest.Title)
	b.WriteString("\n\n")
	for _, line := range digest.Lines {
		b.WriteString(line.Text)
		b.WriteString("\n\n")
	}

	tempFilePath := s.filePath + ".tmp"
	if err := os.WriteFile(tempFilePath, []byte(b.String()), 0644); err != nil {
		log.Error().Err(err).Str("file", tempFilePath).Msg("Failed to write temporary digest file")
		return fmt.Errorf("failed to write digest file: %w", err)
	}

	if err := os.Rename(tempFilePath, s.filePath); err != nil {
		log.Error().Err(err).Str("from", tempFilePath).Str("to", s.filePath).Msg("Failed to rename digest file")
		_ = os.Remove(tempFilePath)
		return fmt.Errorf("failed to replace digest file: %w", err)
	}
	log.Debug().Str("file", s.filePath).Int("lines", len(digest.Lines)).Msg("Messages saved to file")
	return nil
}
