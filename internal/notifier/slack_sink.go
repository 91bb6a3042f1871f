package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/model"
)

type slackSink struct {
	client          *slack.Client
	channel         string
	maxRetries      int
	initialInterval time.Duration
}

func NewSlackSink(cfg config.SlackConfig, options ...slack.Option) Sink {
	return &slackSink{
		client:          slack.New(cfg.Token, options...),
		channel:         cfg.Channel,
		maxRetries:      cfg.MaxRetries,
		initialInterval: time.Second,
	}
}

func (s *slackSink) Name() string { return "slack" }

// Deliver posts the digest as one message. Rate limits, transport errors
// and 5xx responses are retried; Slack API errors are not. A rate limited
// retry waits at least the Retry-After the server sent.
func (s *slackSink) Deliver(ctx context.Context, digest model.Digest) error {
	body := MessageBody(digest)
	log.Debug().Str("channel", s.channel).Str("body", body).Msg("Sending message to Slack")

	exponential := backoff.NewExponentialBackOff()
	exponential.InitialInterval = s.initialInterval
	exponential.MaxInterval = 30 * time.Second
	exponential.MaxElapsedTime = 2 * time.Minute
	policy := &retryAfterBackOff{BackOff: exponential}

	operation := func() error {
		_, ts, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(body, false))
		if err != nil {
			var rateLimited *slack.RateLimitedError
			if errors.As(err, &rateLimited) {
				policy.retryAfter = rateLimited.RetryAfter
			}
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		log.Debug().Str("channel", s.channel).Str("ts", ts).Msg("Message sent successfully")
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Str("channel", s.channel).Msg("Slack post failed, retrying")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.maxRetries)), ctx), notify)
	if err != nil {
		return fmt.Errorf("failed to send message to Slack: %w", err)
	}
	return nil
}

// retryAfterBackOff waits at least as long as the last rate limit response
// asked for.
type retryAfterBackOff struct {
	backoff.BackOff
	retryAfter time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	if b.retryAfter > next {
		next = b.retryAfter
	}
	b.retryAfter = 0
	return next
}

func isRetryable(err error) bool {
	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return true
	}
	var statusErr slack.StatusCodeError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) {
		return false
	}
	return true
}
