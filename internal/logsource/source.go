package logsource

import (
	"context"
	"fmt"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/model"
)

// LogSource returns the complete log text of every source in the group,
// sorted by source identifier so that iteration order is deterministic.
type LogSource interface {
	Fetch(ctx context.Context) ([]model.SourceLog, error)
}

// NewLogSource builds the source selected by LOG_SOURCE.
func NewLogSource(cfg *config.Config) (LogSource, error) {
	switch cfg.LogSource.Kind {
	case config.LogSourceKubernetes:
		client, err := NewKubernetesClient(cfg.Kubernetes)
		if err != nil {
			return nil, err
		}
		return NewKubernetesSource(client, cfg.Kubernetes), nil
	case config.LogSourceDirectory:
		return NewDirectorySource(cfg.LogSource.LogDirectory), nil
	default:
		return nil, fmt.Errorf("unsupported log source %q", cfg.LogSource.Kind)
	}
}
