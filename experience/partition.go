package experience

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"githubactivity/models"
)

// Partition granularities.
const (
	Monthly   = "monthly"
	Quarterly = "quarterly"
)

// ErrInvalidGranularity is returned for an unknown granularity name.
var ErrInvalidGranularity = errors.New("invalid granularity")

// GranularityFor picks quarterly buckets for ranges longer than a year.
func GranularityFor(days int) string {
	if days > 365 {
		return Quarterly
	}
	return Monthly
}

// ParseGranularity accepts monthly, quarterly, or auto/empty (returned as "").
func ParseGranularity(s string) (string, error) {
	switch g := strings.ToLower(strings.TrimSpace(s)); g {
	case "", "auto":
		return "", nil
	case Monthly, Quarterly:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
	}
}

// PeriodActivity is the activity that falls in one partition bucket.
// Buckets are half-open [Start, End); the last bucket of a partition also
// holds items at exactly End.
type PeriodActivity struct {
	Start   time.Time
	End     time.Time
	Commits []models.Commit
	Events  []models.Event
}

// Partition splits w into calendar months or quarters, clipped to w.
func Partition(w models.Window, granularity string) ([]PeriodActivity, error) {
	step := 1
	switch granularity {
	case Monthly:
	case Quarterly:
		step = 3
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidGranularity, granularity)
	}

	since, until := w.Since.UTC(), w.Until.UTC()
	start := time.Date(since.Year(), since.Month(), 1, 0, 0, 0, 0, time.UTC)
	if step == 3 {
		q := (int(start.Month()) - 1) / 3
		start = time.Date(start.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
	}

	var periods []PeriodActivity
	for b := start; b.Before(until) || len(periods) == 0; b = b.AddDate(0, step, 0) {
		next := b.AddDate(0, step, 0)
		p := PeriodActivity{Start: b, End: next}
		if p.Start.Before(since) {
			p.Start = since
		}
		if p.End.After(until) {
			p.End = until
		}
		periods = append(periods, p)
	}
	return periods, nil
}

// Distribute assigns commits and events to the bucket containing their
// timestamp. Items outside every bucket are dropped.
func Distribute(periods []PeriodActivity, commits []models.Commit, events []models.Event) {
	for _, c := range commits {
		if i := bucketOf(periods, c.AuthoredAt); i >= 0 {
			periods[i].Commits = append(periods[i].Commits, c)
		}
	}
	for _, e := range events {
		if i := bucketOf(periods, e.CreatedAt); i >= 0 {
			periods[i].Events = append(periods[i].Events, e)
		}
	}
}

func bucketOf(periods []PeriodActivity, t time.Time) int {
	if len(periods) == 0 {
		return -1
	}
	i := sort.Search(len(periods), func(i int) bool { return t.Before(periods[i].End) })
	if i == len(periods) {
		last := len(periods) - 1
		if t.Equal(periods[last].End) {
			return last
		}
		return -1
	}
	if t.Before(periods[i].Start) {
		return -1
	}
	return i
}
