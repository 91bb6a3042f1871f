package aggregator

import (
	"time"

	"rancher-error-digest/internal/model"
)

// Aggregator groups in-window entries by normalized message. It is built for
// a single pass over one run's entries and is not safe for concurrent use.
type Aggregator struct {
	timeLimit time.Time
	groups    map[string]*model.AggregateGroup
	order     []string
}

// New returns an Aggregator admitting entries at or after runStart - window.
func New(runStart time.Time, window time.Duration) *Aggregator {
	return &Aggregator{
		timeLimit: runStart.Add(-window),
		groups:    make(map[string]*model.AggregateGroup),
	}
}

// TimeLimit is the inclusive lower bound of the window.
func (a *Aggregator) TimeLimit() time.Time {
	return a.timeLimit
}

// Add counts entry if it falls inside the window and reports whether it did.
// The first occurrence of a message fixes its timestamp and severity.
func (a *Aggregator) Add(entry model.ParsedEntry) bool {
	if entry.Timestamp.Before(a.timeLimit) {
		return false
	}

	group, ok := a.groups[entry.Message]
	if !ok {
		group = &model.AggregateGroup{
			Message:        entry.Message,
			FirstTimestamp: entry.Timestamp,
			Severity:       entry.Severity,
			Order:          len(a.order),
		}
		a.groups[entry.Message] = group
		a.order = append(a.order, entry.Message)
	}
	group.Count++
	return true
}

// Groups returns a copy of every group in first-encounter order.
func (a *Aggregator) Groups() []model.AggregateGroup {
	groups := make([]model.AggregateGroup, 0, len(a.order))
	for _, key := range a.order {
		groups = append(groups, *a.groups[key])
	}
	return groups
}
