package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/model"
	"rancher-error-digest/internal/service"
)

type countingService struct {
	calls atomic.Int32
	err   error
}

func (s *countingService) Run(ctx context.Context) (model.Digest, error) {
	s.calls.Add(1)
	return model.Digest{}, s.err
}

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"Six Field", "0 */5 * * * *", false},
		{"Descriptor", "@every 1m", false},
		{"Garbage", "every five minutes", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := fxtest.NewLifecycle(t)
			cfg := &config.Config{Digest: config.DigestConfig{Schedule: tt.schedule}}

			c, err := NewScheduler(lc, cfg, &countingService{})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Len(t, c.Entries(), 1)

			lc.RequireStart()
			lc.RequireStop()
		})
	}
}

func TestDigestJob(t *testing.T) {
	for _, runErr := range []error{nil, service.ErrRunInProgress, errors.New("fetch failed")} {
		svc := &countingService{err: runErr}
		digestJob(svc)()
		assert.Equal(t, int32(1), svc.calls.Load())
	}
}
