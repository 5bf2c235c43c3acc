// Package models defines the core data structures used throughout the application.
package models

import (
	"fmt"
	"time"
)

// ErrInvalidWindow is returned when a window's bounds are inverted.
var ErrInvalidWindow = fmt.Errorf("invalid window")

// Repository represents a GitHub repository
type Repository struct {
	ID              int       `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Owner           string    `db:"owner" json:"owner"`
	FullName        string    `db:"-" json:"full_name"`
	Description     string    `db:"description" json:"description"`
	URL             string    `db:"url" json:"url"`
	Language        string    `db:"language" json:"language"`
	Fork            bool      `db:"-" json:"fork"`
	Archived        bool      `db:"-" json:"archived"`
	ForksCount      int       `db:"forks_count" json:"forks_count"`
	StarsCount      int       `db:"stars_count" json:"stars_count"`
	OpenIssuesCount int       `db:"open_issues_count" json:"open_issues_count"`
	WatchersCount   int       `db:"watchers_count" json:"watchers_count"`
	PushedAt        time.Time `db:"-" json:"pushed_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Event is one recorded action on GitHub (push, issue, PR, ...).
type Event struct {
	ID        string         `json:"id,omitempty"`
	Type      string         `json:"type"`
	Actor     string         `json:"actor"`
	Repo      string         `json:"repo"`
	CreatedAt time.Time      `json:"created_at"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Key returns the identity used for de-duplication. The remote event id
// wins when present; otherwise the tuple plus a payload discriminator.
func (e Event) Key() string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s", e.Type, e.Actor, e.Repo,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.discriminator())
}

func (e Event) discriminator() string {
	for _, k := range []string{"head", "number", "ref", "tag_name", "forkee"} {
		if v, ok := e.Payload[k]; ok {
			return fmt.Sprintf("%s=%v", k, v)
		}
	}
	for _, nested := range []string{"issue", "pull_request", "release"} {
		if m, ok := e.Payload[nested].(map[string]any); ok {
			for _, k := range []string{"number", "tag_name"} {
				if v, ok := m[k]; ok {
					return fmt.Sprintf("%s.%s=%v", nested, k, v)
				}
			}
		}
	}
	return ""
}

// FileChange is a single file touched by a commit.
type FileChange struct {
	Path      string `json:"path"`
	Additions int64  `json:"additions"`
	Deletions int64  `json:"deletions"`
	Status    string `json:"status,omitempty"`
}

// Weight is the number of changed lines, used for language scoring.
func (f FileChange) Weight() int64 {
	return f.Additions + f.Deletions
}

// Commit represents a GitHub commit
type Commit struct {
	SHA         string       `json:"sha"`
	Author      string       `json:"author"`
	AuthorEmail string       `json:"author_email,omitempty"`
	Repo        string       `json:"repository"`
	AuthoredAt  time.Time    `json:"authored_at"`
	Message     string       `json:"message"`
	URL         string       `json:"url,omitempty"`
	Files       []FileChange `json:"files,omitempty"`
}

// Issue is a GitHub issue the subject authored, was assigned or commented on.
type Issue struct {
	Number    int        `json:"number"`
	Repo      string     `json:"repository"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Labels    []string   `json:"labels,omitempty"`
	URL       string     `json:"url,omitempty"`
}

// Key returns the issue identity.
func (i Issue) Key() string {
	return fmt.Sprintf("%s#%d", i.Repo, i.Number)
}

// PullRequest is an Issue that carries a pull request.
type PullRequest struct {
	Issue
	Merged bool `json:"merged,omitempty"`
}

// Window is a closed UTC time interval [Since, Until].
type Window struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`
}

// NewWindow normalizes both bounds to UTC and rejects since > until.
func NewWindow(since, until time.Time) (Window, error) {
	since, until = since.UTC(), until.UTC()
	if since.After(until) {
		return Window{}, fmt.Errorf("%w: since %s is after until %s", ErrInvalidWindow,
			since.Format(time.RFC3339), until.Format(time.RFC3339))
	}
	return Window{Since: since, Until: until}, nil
}

// LastDays returns the window covering the given number of days up to now.
func LastDays(now time.Time, days int) Window {
	now = now.UTC()
	return Window{Since: now.AddDate(0, 0, -days), Until: now}
}

// Contains reports whether t falls inside the closed window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since) && !t.After(w.Until)
}

// Warning kinds attached to best-effort results.
const (
	WarningPartialAggregation = "partial_aggregation"
	WarningPartialResult      = "partial_result"
)

// Warning records a sub-fetch that failed without aborting the whole result.
type Warning struct {
	Kind    string `json:"kind"`
	Scope   string `json:"scope"`
	Message string `json:"message"`
}

// ActivitySummary is the aggregate of a subject's activity within a window.
type ActivitySummary struct {
	Subject            string         `json:"subject"`
	Window             Window         `json:"window"`
	EventCountsByType  map[string]int `json:"event_counts_by_type"`
	TotalEvents        int            `json:"total_events"`
	ActiveRepositories []string       `json:"repositories_active"`
	Events             []Event        `json:"events"`
	Commits            []Commit       `json:"commits"`
	Issues             []Issue        `json:"issues"`
	PullRequests       []PullRequest  `json:"pull_requests"`
	Warnings           []Warning      `json:"warnings,omitempty"`
	Partial            bool           `json:"partial,omitempty"`
}

// CommitList is the result of a cross-repository commit query.
type CommitList struct {
	Subject  string    `json:"subject"`
	Since    time.Time `json:"since"`
	Commits  []Commit  `json:"commits"`
	Warnings []Warning `json:"warnings,omitempty"`
	Partial  bool      `json:"partial,omitempty"`
}

// EventList is the result of an events query.
type EventList struct {
	Subject  string    `json:"subject"`
	Events   []Event   `json:"events"`
	Warnings []Warning `json:"warnings,omitempty"`
	Partial  bool      `json:"partial,omitempty"`
}
