package models

import "time"

// PassOrigin records what started an ingestion pass.
type PassOrigin string

const (
	OriginScheduled PassOrigin = "scheduled"
	OriginOnDemand  PassOrigin = "on_demand"
	OriginCLI       PassOrigin = "cli"
)

// FeedResult summarizes one feed's pipeline within a pass.
type FeedResult struct {
	Feed       FeedConfig    `json:"feed"`
	Items      int           `json:"items"`
	Inserted   int           `json:"inserted"`
	Duplicates int           `json:"duplicates"`
	Skipped    int           `json:"skipped"`   // items without a link
	Defaulted  int           `json:"defaulted"` // items stored with a placeholder title or date
	ScoreFails int           `json:"score_failures"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether the feed reached its terminal state without a feed-scoped failure.
func (r FeedResult) OK() bool { return r.ErrorKind == "" }

// PassReport is the outcome of one orchestrator run across all configured feeds.
type PassReport struct {
	ID         string       `json:"id"`
	Origin     PassOrigin   `json:"origin"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Feeds      []FeedResult `json:"feeds"`
}

// Inserted returns the number of new articles committed across all feeds.
func (p *PassReport) Inserted() int {
	n := 0
	for _, f := range p.Feeds {
		n += f.Inserted
	}
	return n
}

// Failed returns the number of feeds that ended in a feed-scoped failure.
func (p *PassReport) Failed() int {
	n := 0
	for _, f := range p.Feeds {
		if !f.OK() {
			n++
		}
	}
	return n
}
