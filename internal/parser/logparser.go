package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"rancher-error-digest/internal/model"

	"github.com/rs/zerolog/log"
)

// LineClassifier recognizes error and warning lines. A line that matches no
// known format yields ok == false and a nil error.
type LineClassifier interface {
	Classify(line string, now time.Time) (entry model.ParsedEntry, ok bool, err error)
}

// TimestampError reports a line that matched a format but carried a
// timestamp that is not a valid instant.
type TimestampError struct {
	Format model.LineFormat
	Value  string
	Err    error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("invalid %s timestamp %q: %v", e.Format, e.Value, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

const (
	bracketedLayout   = "2006/01/02 15:04:05"
	letterCodedLayout = "2006 0102 15:04:05.000000"
)

type lineClassifier struct {
	bracketedRegex   *regexp.Regexp
	letterCodedRegex *regexp.Regexp
}

func NewLineClassifier() LineClassifier {
	return &lineClassifier{
		// Groups: 1:Timestamp, 2:Message
		bracketedRegex: regexp.MustCompile(`^(\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}) \[ERROR\] (.+)`),
		// Groups: 1:Code, 2:MMDD HH:MM:SS.ffffff, 3:Thread id, 4:Message
		letterCodedRegex: regexp.MustCompile(`^([EW])(\d{4} \d{2}:\d{2}:\d{2}\.\d{6}) +(\d+) (.+)`),
	}
}

func (c *lineClassifier) Classify(line string, now time.Time) (model.ParsedEntry, bool, error) {
	line = strings.TrimRight(line, "\r")

	if matches := c.bracketedRegex.FindStringSubmatch(line); matches != nil {
		timestamp, err := time.ParseInLocation(bracketedLayout, matches[1], time.UTC)
		if err != nil {
			return model.ParsedEntry{}, false, &TimestampError{Format: model.FormatBracketedError, Value: matches[1], Err: err}
		}
		return model.ParsedEntry{
			Timestamp: timestamp,
			Severity:  model.SeverityError,
			Message:   matches[2],
			Format:    model.FormatBracketedError,
		}, true, nil
	}

	if matches := c.letterCodedRegex.FindStringSubmatch(line); matches != nil {
		// The year is absent from this layout; assume the run's current year.
		value := fmt.Sprintf("%d %s", now.UTC().Year(), matches[2])
		timestamp, err := time.ParseInLocation(letterCodedLayout, value, time.UTC)
		if err != nil {
			return model.ParsedEntry{}, false, &TimestampError{Format: model.FormatLetterCoded, Value: value, Err: err}
		}
		severity := model.SeverityWarning
		if matches[1] == "E" {
			severity = model.SeverityError
		}
		return model.ParsedEntry{
			Timestamp: timestamp,
			Severity:  severity,
			Message:   matches[4],
			Format:    model.FormatLetterCoded,
		}, true, nil
	}

	log.Trace().Str("line", line).Msg("Log line did not match any known format")
	return model.ParsedEntry{}, false, nil
}
