package model

import "time"

// SourceLog is the full log text fetched from one source (pod or file).
type SourceLog struct {
	Source  string `json:"source"`
	Content string `json:"-"`
}

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "Warning"
	}
	return "Error"
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LineFormat identifies which known log layout produced an entry.
type LineFormat string

const (
	FormatBracketedError LineFormat = "bracketed-error"
	FormatLetterCoded    LineFormat = "letter-coded"
)

// ParsedEntry is a classified error or warning line. Message is the
// normalized body and doubles as the deduplication key.
type ParsedEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Severity  Severity   `json:"severity"`
	Message   string     `json:"message"`
	Format    LineFormat `json:"format"`
}
