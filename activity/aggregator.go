// Package activity collects a subject's events, commits, issues and pull
// requests within a time window from the paginated GitHub API.
//
// Collection is best effort: a failing repository or commit lookup becomes
// a models.Warning on the result instead of failing the whole request.
// Failures on the subject itself (unknown user, bad credentials) and
// cancellation abort the aggregation.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"githubactivity/github"
	"githubactivity/logger"
	"githubactivity/models"
	"githubactivity/pagination"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Kinds selects which collections Aggregate fills.
type Kinds struct {
	Events       bool
	Commits      bool
	Issues       bool
	PullRequests bool
	// CommitFiles enriches collected commits with per-file statistics.
	CommitFiles bool
}

// AllKinds selects every collection except per-file commit statistics.
func AllKinds() Kinds {
	return Kinds{Events: true, Commits: true, Issues: true, PullRequests: true}
}

// Recorder counts warnings; metrics.Manager satisfies it.
type Recorder interface {
	Warning(kind string)
}

type nopRecorder struct{}

func (nopRecorder) Warning(string) {}

// Options bounds the aggregator's fan-out. MaxPages caps every listing walk;
// 0 leaves only the item limits.
type Options struct {
	PageSize          int
	Concurrency       int
	MaxRepositories   int
	MaxCommitsPerRepo int
	MaxCommitDetails  int
	MaxPages          int
	IncludeForks      bool
	Now               func() time.Time
	Recorder          Recorder
}

// Aggregator builds activity summaries.
type Aggregator struct {
	fetcher github.Fetcher
	opts    Options
}

func New(fetcher github.Fetcher, opts Options) *Aggregator {
	if opts.Concurrency < 1 {
		opts.Concurrency = 5
	}
	if opts.PageSize <= 0 {
		opts.PageSize = pagination.DefaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	return &Aggregator{fetcher: fetcher, opts: opts}
}

// collector accumulates warnings from concurrent sub-fetches.
type collector struct {
	mu       sync.Mutex
	warnings []models.Warning
	partial  bool
	recorder Recorder
}

func (c *collector) warn(kind, scope string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.warnings = append(c.warnings, models.Warning{Kind: kind, Scope: scope, Message: err.Error()})
	if kind == models.WarningPartialResult {
		c.partial = true
	}
	c.recorder.Warning(kind)
	logger.Warn("Partial aggregation",
		zap.String("kind", kind),
		zap.String("scope", scope),
		zap.Error(err))
}

// result returns the warnings ordered by kind, scope and message so the
// output does not depend on which sub-fetch finished first.
func (c *collector) result() []models.Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]models.Warning(nil), c.warnings...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		return a.Message < b.Message
	})
	return out
}

// walkResult turns a finished walk into an error or a warning. Only a walk
// that yielded nothing and failed is returned as an error.
func (c *collector) walkResult(scope string, partial bool, err error) error {
	if err == nil {
		return nil
	}
	if isCancellation(err) {
		return err
	}
	if partial {
		c.warn(models.WarningPartialResult, scope, err)
		return nil
	}
	return err
}

func (a *Aggregator) newCollector() *collector {
	return &collector{recorder: a.opts.Recorder}
}

// Aggregate collects the requested kinds of activity of subject within w.
func (a *Aggregator) Aggregate(ctx context.Context, subject string, w models.Window, kinds Kinds) (*models.ActivitySummary, error) {
	logger.Info("Aggregating activity",
		zap.String("subject", subject),
		zap.Time("since", w.Since),
		zap.Time("until", w.Until))

	col := a.newCollector()
	summary := &models.ActivitySummary{
		Subject:           subject,
		Window:            w,
		EventCountsByType: map[string]int{},
		Events:            []models.Event{},
		Commits:           []models.Commit{},
		Issues:            []models.Issue{},
		PullRequests:      []models.PullRequest{},
	}

	if kinds.Events {
		events, err := a.userEvents(ctx, col, subject, 0, w.Since)
		if err != nil {
			return nil, fmt.Errorf("error getting events for %s: %w", subject, err)
		}
		summary.Events = mergeEvents(w, events)
		for _, e := range summary.Events {
			summary.EventCountsByType[e.Type]++
		}
		summary.TotalEvents = len(summary.Events)
	}

	if kinds.Commits || kinds.CommitFiles {
		commits, err := a.commits(ctx, col, subject, w, a.opts.MaxCommitsPerRepo)
		switch {
		case err == nil:
		case isFatal(err):
			return nil, fmt.Errorf("error getting commits for %s: %w", subject, err)
		default:
			col.warn(models.WarningPartialAggregation, subject+" repositories", err)
			commits = []models.Commit{}
		}
		if kinds.CommitFiles {
			if err := a.enrichCommits(ctx, col, commits); err != nil {
				return nil, err
			}
		}
		summary.Commits = commits
	}

	if kinds.Issues || kinds.PullRequests {
		issues, prs, err := a.issues(ctx, col, subject, w)
		switch {
		case err == nil:
		case isCancellation(err), errors.Is(err, github.ErrUnauthorized):
			return nil, fmt.Errorf("error getting issues for %s: %w", subject, err)
		default:
			col.warn(models.WarningPartialAggregation, "search/issues", err)
		}
		if kinds.Issues {
			summary.Issues = mergeIssues(w, issues)
		}
		if kinds.PullRequests {
			summary.PullRequests = mergePullRequests(w, prs)
		}
	}

	summary.ActiveRepositories = activeRepositories(summary)
	summary.Warnings = col.result()
	summary.Partial = col.partial

	logger.Info("Aggregated activity",
		zap.String("subject", subject),
		zap.Int("events", len(summary.Events)),
		zap.Int("commits", len(summary.Commits)),
		zap.Int("issues", len(summary.Issues)),
		zap.Int("pull_requests", len(summary.PullRequests)),
		zap.Int("warnings", len(summary.Warnings)))
	return summary, nil
}

// UserEvents returns up to limit of the most recent public events of username.
func (a *Aggregator) UserEvents(ctx context.Context, username string, limit int) (*models.EventList, error) {
	col := a.newCollector()
	events, err := a.userEvents(ctx, col, username, limit, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("error getting user events: %w", err)
	}
	return eventList(username, events, col), nil
}

// RepositoryEvents returns up to limit of the most recent events of owner/repo.
func (a *Aggregator) RepositoryEvents(ctx context.Context, owner, repo string, limit int) (*models.EventList, error) {
	col := a.newCollector()
	fullName := owner + "/" + repo
	events, err := a.walkEvents(ctx, col, github.RepoEventsPath(owner, repo), fullName, limit, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("error getting repository events: %w", err)
	}
	return eventList(fullName, events, col), nil
}

func eventList(subject string, events []models.Event, col *collector) *models.EventList {
	return &models.EventList{
		Subject:  subject,
		Events:   dedupeEvents(events),
		Warnings: col.result(),
		Partial:  col.partial,
	}
}

// UserCommits returns up to limit commits authored by username since the
// given time across the repositories they own.
func (a *Aggregator) UserCommits(ctx context.Context, username string, since time.Time, limit int) (*models.CommitList, error) {
	w, err := models.NewWindow(since, a.opts.Now())
	if err != nil {
		return nil, err
	}

	perRepo := a.opts.MaxCommitsPerRepo
	if limit > 0 && (perRepo <= 0 || limit < perRepo) {
		perRepo = limit
	}

	col := a.newCollector()
	commits, err := a.commits(ctx, col, username, w, perRepo)
	if err != nil {
		return nil, fmt.Errorf("error getting user commits: %w", err)
	}
	if limit > 0 && len(commits) > limit {
		commits = commits[:limit]
	}
	return &models.CommitList{
		Subject:  username,
		Since:    w.Since,
		Commits:  commits,
		Warnings: col.result(),
		Partial:  col.partial,
	}, nil
}

func (a *Aggregator) userEvents(ctx context.Context, col *collector, username string, limit int, cutoff time.Time) ([]models.Event, error) {
	return a.walkEvents(ctx, col, github.UserEventsPath(username), username, limit, cutoff)
}

func (a *Aggregator) walkEvents(ctx context.Context, col *collector, endpoint, scope string, limit int, cutoff time.Time) ([]models.Event, error) {
	walk := pagination.New[github.EventResponse](a.fetcher, endpoint, nil, pagination.Options[github.EventResponse]{
		PageSize: a.opts.PageSize,
		MaxItems: limit,
		MaxPages: a.opts.MaxPages,
		Cutoff:   cutoff,
		TimeOf:   func(e github.EventResponse) time.Time { return e.CreatedAt },
	})

	events := []models.Event{}
	for e := range walk.All(ctx) {
		events = append(events, e.ToModel())
	}
	if err := col.walkResult(scope+" events", walk.Partial(), walk.Err()); err != nil {
		return nil, err
	}
	return events, nil
}

// Repositories lists the repositories owned by username that were pushed
// to at or after since, most recently pushed first.
func (a *Aggregator) Repositories(ctx context.Context, username string, since time.Time) ([]models.Repository, []models.Warning, error) {
	col := a.newCollector()
	repos, err := a.repositories(ctx, col, username, since)
	return repos, col.result(), err
}

func (a *Aggregator) repositories(ctx context.Context, col *collector, username string, since time.Time) ([]models.Repository, error) {
	params := url.Values{
		"type":      {"owner"},
		"sort":      {"pushed"},
		"direction": {"desc"},
	}
	walk := pagination.New[github.RepoResponse](a.fetcher, github.UserReposPath(username), params, pagination.Options[github.RepoResponse]{
		PageSize: a.opts.PageSize,
		MaxPages: a.opts.MaxPages,
		Cutoff:   since,
		TimeOf:   func(r github.RepoResponse) time.Time { return r.PushedAt },
	})

	var repos []models.Repository
	for r := range walk.All(ctx) {
		if r.Fork && !a.opts.IncludeForks {
			continue
		}
		repos = append(repos, r.ToModel())
		if a.opts.MaxRepositories > 0 && len(repos) >= a.opts.MaxRepositories {
			break
		}
	}
	if err := col.walkResult(username+" repositories", walk.Partial(), walk.Err()); err != nil {
		return nil, err
	}
	return repos, nil
}

// commits fans out one commit walk per repository with bounded
// concurrency. Per-repository failures become warnings.
func (a *Aggregator) commits(ctx context.Context, col *collector, username string, w models.Window, perRepo int) ([]models.Commit, error) {
	repos, err := a.repositories(ctx, col, username, w.Since)
	if err != nil {
		return nil, err
	}

	results := make([][]models.Commit, len(repos))
	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i, repo := range repos {
		g.Go(func() error {
			commits, err := a.repoCommits(ctx, col, repo.FullName, username, w, perRepo)
			if err != nil {
				if isCancellation(err) {
					return err
				}
				col.warn(models.WarningPartialAggregation, repo.FullName, err)
				return nil
			}
			results[i] = commits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []models.Commit
	for _, commits := range results {
		all = append(all, commits...)
	}
	return mergeCommits(w, all), nil
}

func (a *Aggregator) repoCommits(ctx context.Context, col *collector, fullName, author string, w models.Window, limit int) ([]models.Commit, error) {
	params := url.Values{
		"author": {author},
		"since":  {w.Since.Format(time.RFC3339)},
		"until":  {w.Until.Format(time.RFC3339)},
	}
	walk := pagination.New[github.CommitResponse](a.fetcher, github.RepoCommitsPath(fullName), params, pagination.Options[github.CommitResponse]{
		PageSize: a.opts.PageSize,
		MaxItems: limit,
		MaxPages: a.opts.MaxPages,
	})

	var commits []models.Commit
	for c := range walk.All(ctx) {
		commits = append(commits, c.ToModel(fullName))
	}
	if err := col.walkResult(fullName+" commits", walk.Partial(), walk.Err()); err != nil {
		return nil, err
	}
	return commits, nil
}

// enrichCommits fills Files for the newest commits, up to MaxCommitDetails.
func (a *Aggregator) enrichCommits(ctx context.Context, col *collector, commits []models.Commit) error {
	n := len(commits)
	if a.opts.MaxCommitDetails > 0 && n > a.opts.MaxCommitDetails {
		n = a.opts.MaxCommitDetails
	}

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			c := &commits[i]
			if len(c.Files) > 0 {
				return nil
			}
			files, err := a.commitFiles(ctx, c.Repo, c.SHA)
			if err != nil {
				if isCancellation(err) {
					return err
				}
				col.warn(models.WarningPartialAggregation, c.Repo+"@"+shortSHA(c.SHA), err)
				return nil
			}
			c.Files = files
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (a *Aggregator) commitFiles(ctx context.Context, fullName, sha string) ([]models.FileChange, error) {
	resp, err := a.fetcher.Fetch(ctx, github.CommitPath(fullName, sha), nil)
	if err != nil {
		return nil, err
	}
	var detail github.CommitResponse
	if err := json.Unmarshal(resp.Body, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode commit %s: %w", sha, err)
	}
	files := detail.ToModel(fullName).Files
	if files == nil {
		files = []models.FileChange{}
	}
	return files, nil
}

func (a *Aggregator) issues(ctx context.Context, col *collector, username string, w models.Window) ([]models.Issue, []models.PullRequest, error) {
	params := url.Values{
		"q":     {fmt.Sprintf("involves:%s updated:>=%s", username, w.Since.Format("2006-01-02"))},
		"sort":  {"updated"},
		"order": {"desc"},
	}
	walk := pagination.New[github.SearchIssue](a.fetcher, github.SearchIssuesPath, params, pagination.Options[github.SearchIssue]{
		PageSize:   a.opts.PageSize,
		MaxPages:   a.opts.MaxPages,
		Cutoff:     w.Since,
		TimeOf:     func(s github.SearchIssue) time.Time { return s.UpdatedAt },
		ItemsField: "items",
	})

	var issues []models.Issue
	var prs []models.PullRequest
	for item := range walk.All(ctx) {
		if item.IsPullRequest() {
			prs = append(prs, item.ToPullRequest())
		} else {
			issues = append(issues, item.ToIssue())
		}
	}
	if err := col.walkResult(username+" issues", walk.Partial(), walk.Err()); err != nil {
		return nil, nil, err
	}
	return issues, prs, nil
}

// isFatal reports failures on the subject itself, which no partial result
// can stand in for.
func isFatal(err error) bool {
	return isCancellation(err) ||
		errors.Is(err, github.ErrUnauthorized) ||
		errors.Is(err, github.ErrNotFound)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
