package logsource

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"rancher-error-digest/internal/model"
)

type directorySource struct {
	root string
}

// NewDirectorySource reads every *.log file below root, one source per file.
func NewDirectorySource(root string) LogSource {
	return &directorySource{root: root}
}

func (s *directorySource) Fetch(ctx context.Context) ([]model.SourceLog, error) {
	logFiles, err := s.findLogFiles()
	if err != nil {
		return nil, err
	}
	log.Debug().Int("file_count", len(logFiles)).Str("dir", s.root).Msg("Found log files to read")

	logs := make([]model.SourceLog, 0, len(logFiles))
	for _, path := range logFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read log file %s: %w", path, err)
		}
		logs = append(logs, model.SourceLog{Source: path, Content: string(data)})
	}
	return logs, nil
}

// findLogFiles walks root in lexical order, which keeps the result sorted.
func (s *directorySource) findLogFiles() ([]string, error) {
	var logFiles []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load log directory: %w", err)
	}
	return logFiles, nil
}
