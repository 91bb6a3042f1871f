package notifier

import (
	"context"
	"strings"

	"rancher-error-digest/internal/model"
)

// Sink delivers a non-empty digest to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, digest model.Digest) error
}

// MessageBody renders the digest as the single text body used by chat
// destinations: the title, a blank line, then lines separated by blank lines.
func MessageBody(digest model.Digest) string {
	return digest.Title + "\n\n" + strings.Join(digest.Texts(), "\n\n")
}
