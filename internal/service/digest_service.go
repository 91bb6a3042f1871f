package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rancher-error-digest/config"
	"rancher-error-digest/internal/aggregator"
	"rancher-error-digest/internal/logsource"
	"rancher-error-digest/internal/metrics"
	"rancher-error-digest/internal/model"
	"rancher-error-digest/internal/notifier"
	"rancher-error-digest/internal/parser"
	"rancher-error-digest/internal/report"
	"rancher-error-digest/internal/store"
)

var ErrRunInProgress = errors.New("digest run already in progress")

type DigestService interface {
	// Run performs one fetch, aggregate, format and deliver cycle. Sink
	// failures are logged and do not fail the run.
	Run(ctx context.Context) (model.Digest, error)
}

type digestService struct {
	cfg         config.DigestConfig
	source      logsource.LogSource
	classifier  parser.LineClassifier
	formatter   *report.Formatter
	sinks       []notifier.Sink
	recorder    metrics.Recorder
	store       store.DigestStore
	now         func() time.Time
	processLock sync.Mutex
}

func NewDigestService(
	cfg *config.Config,
	source logsource.LogSource,
	classifier parser.LineClassifier,
	sinks []notifier.Sink,
	recorder metrics.Recorder,
	digestStore store.DigestStore,
) DigestService {
	return newDigestService(cfg.Digest, source, classifier, sinks, recorder, digestStore, time.Now)
}

func newDigestService(
	cfg config.DigestConfig,
	source logsource.LogSource,
	classifier parser.LineClassifier,
	sinks []notifier.Sink,
	recorder metrics.Recorder,
	digestStore store.DigestStore,
	now func() time.Time,
) *digestService {
	return &digestService{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		formatter:  report.NewFormatter(cfg.LocalTimeOffset),
		sinks:      sinks,
		recorder:   recorder,
		store:      digestStore,
		now:        now,
	}
}

func (s *digestService) Run(ctx context.Context) (model.Digest, error) {
	if !s.processLock.TryLock() {
		log.Warn().Msg("Digest run already in progress, skipping run.")
		return model.Digest{}, ErrRunInProgress
	}
	defer s.processLock.Unlock()

	start := time.Now()
	runStart := s.now().UTC()
	digest := model.Digest{
		RunID:         uuid.NewString(),
		StartedAt:     runStart,
		WindowMinutes: s.cfg.WindowMinutes,
		Title:         report.Title(s.cfg.Title, s.cfg.WindowMinutes),
	}
	logger := log.With().Str("run_id", digest.RunID).Logger()

	logger.Info().Msg("Fetching logs...")
	logs, err := s.source.Fetch(ctx)
	if err != nil {
		err = fmt.Errorf("failed to fetch logs: %w", err)
		s.recorder.ObserveRun(digest.Stats, time.Since(start), err)
		return digest, err
	}

	logger.Info().Msg("Finding error lines...")
	groups, stats, err := s.aggregate(logs, runStart)
	digest.Stats = stats
	if err != nil {
		s.recorder.ObserveRun(digest.Stats, time.Since(start), err)
		return digest, err
	}
	digest.Lines = s.formatter.Format(groups)

	if digest.Empty() {
		logger.Info().Int("window_minutes", s.cfg.WindowMinutes).Msg("No errors found in window, nothing to deliver")
	} else {
		s.deliver(ctx, digest)
	}

	if err := s.store.Save(ctx, digest); err != nil {
		logger.Warn().Err(err).Msg("Failed to keep latest digest")
	}

	logger.Info().
		Int("sources", stats.Sources).
		Int("lines_scanned", stats.LinesScanned).
		Int("entries_matched", stats.EntriesMatched).
		Int("entries_in_window", stats.EntriesInWindow).
		Int("groups", stats.Groups).
		Dur("duration", time.Since(start)).
		Msg("Finished digest run.")
	s.recorder.ObserveRun(stats, time.Since(start), nil)
	return digest, nil
}

// aggregate normalizes and classifies every line of every source, in source
// order, and groups the entries that fall inside the window.
func (s *digestService) aggregate(logs []model.SourceLog, runStart time.Time) ([]model.AggregateGroup, model.RunStats, error) {
	stats := model.RunStats{Sources: len(logs)}
	agg := aggregator.New(runStart, s.cfg.Window())

	for _, sourceLog := range logs {
		reader := bufio.NewReader(strings.NewReader(sourceLog.Content))
		lineNumber := 0

		for {
			line, readErr := reader.ReadString('\n')
			if readErr != nil && readErr != io.EOF {
				return nil, stats, fmt.Errorf("error reading log of %s: %w", sourceLog.Source, readErr)
			}
			if line == "" && readErr == io.EOF {
				break
			}
			lineNumber++
			stats.LinesScanned++

			entry, ok, err := s.classifier.Classify(parser.Normalize(strings.TrimSuffix(line, "\n")), runStart)
			switch {
			case err != nil && s.cfg.StrictTimestamps:
				return nil, stats, fmt.Errorf("%s:%d: %w", sourceLog.Source, lineNumber, err)
			case err != nil:
				log.Warn().Err(err).Str("source", sourceLog.Source).Int("line", lineNumber).Msg("Skipping line with malformed timestamp")
			case ok:
				stats.EntriesMatched++
				if agg.Add(entry) {
					stats.EntriesInWindow++
					if entry.Severity == model.SeverityWarning {
						stats.Warnings++
					} else {
						stats.Errors++
					}
				}
			}

			if readErr == io.EOF {
				break
			}
		}
	}

	groups := agg.Groups()
	stats.Groups = len(groups)
	log.Debug().Time("time_limit", agg.TimeLimit()).Int("groups", len(groups)).Msg("Aggregated log entries")
	return groups, stats, nil
}

func (s *digestService) deliver(ctx context.Context, digest model.Digest) {
	for _, sink := range s.sinks {
		err := sink.Deliver(ctx, digest)
		s.recorder.ObserveDelivery(sink.Name(), err)
		if err != nil {
			log.Error().Err(err).Str("sink", sink.Name()).Str("run_id", digest.RunID).Msg("Failed to deliver digest")
			continue
		}
		log.Info().Str("sink", sink.Name()).Int("lines", len(digest.Lines)).Msg("Delivered digest")
	}
}
