package store

import (
	"context"
	"errors"
	"sync"

	"rancher-error-digest/internal/model"
)

var (
	ErrNoDigest = errors.New("no digest has been produced yet")
)

// DigestStore keeps the outcome of the most recent run in memory so the
// status API can serve it. Nothing is kept across process restarts.
type DigestStore interface {
	Save(ctx context.Context, digest model.Digest) error
	Latest(ctx context.Context) (model.Digest, error)
}

type inMemoryDigestStore struct {
	latest *model.Digest
	mu     sync.RWMutex
}

func NewInMemoryDigestStore() DigestStore {
	return &inMemoryDigestStore{}
}

func (s *inMemoryDigestStore) Save(ctx context.Context, digest model.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]model.ReportLine, len(digest.Lines))
	copy(lines, digest.Lines)
	digest.Lines = lines
	s.latest = &digest
	return nil
}

func (s *inMemoryDigestStore) Latest(ctx context.Context) (model.Digest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return model.Digest{}, ErrNoDigest
	}
	return *s.latest, nil
}
