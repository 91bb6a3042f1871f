package scheduler

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/service"
)

func newCron() *cron.Cron {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.DowOptional | cron.Descriptor)
	return cron.New(cron.WithParser(parser))
}

// NewScheduler registers the digest job on cfg.Digest.Schedule and ties the
// cron lifecycle to the fx application.
func NewScheduler(lc fx.Lifecycle, cfg *config.Config, digestSvc service.DigestService) (*cron.Cron, error) {
	c := newCron()

	schedule := cfg.Digest.Schedule
	if _, err := c.AddFunc(schedule, digestJob(digestSvc)); err != nil {
		log.Error().Err(err).Str("schedule", schedule).Msg("Failed to add cron job")
		return nil, err
	}
	log.Info().Str("schedule", schedule).Msg("Scheduled digest job")

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msg("Starting cron scheduler")
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Stopping cron scheduler...")
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
				log.Info().Msg("Cron scheduler stopped gracefully.")
				return nil
			case <-ctx.Done():
				log.Error().Msg("Context cancelled while waiting for cron scheduler to stop.")
				return ctx.Err()
			}
		},
	})

	return c, nil
}

func digestJob(digestSvc service.DigestService) func() {
	return func() {
		_, err := digestSvc.Run(context.Background())
		switch {
		case errors.Is(err, service.ErrRunInProgress):
			log.Warn().Msg("Previous digest run still in progress, skipping tick")
		case err != nil:
			log.Error().Err(err).Msg("Error during scheduled digest run")
		}
	}
}
