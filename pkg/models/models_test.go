package models

import "testing"

func TestPassReportCounters(t *testing.T) {
	p := &PassReport{
		Feeds: []FeedResult{
			{Inserted: 2, Duplicates: 1},
			{Inserted: 3},
			{ErrorKind: "fetch", Error: "timeout"},
		},
	}
	if got := p.Inserted(); got != 5 {
		t.Errorf("Inserted() = %d, want 5", got)
	}
	if got := p.Failed(); got != 1 {
		t.Errorf("Failed() = %d, want 1", got)
	}
}

func TestFeedResultOK(t *testing.T) {
	if !(FeedResult{}).OK() {
		t.Error("zero FeedResult should be OK")
	}
	if (FeedResult{ErrorKind: "parse"}).OK() {
		t.Error("FeedResult with error kind should not be OK")
	}
}
