package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"githubactivity/github"
	"githubactivity/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) time.Time { return now.AddDate(0, 0, -d) }

// routeFetcher serves canned pages per endpoint.
type routeFetcher struct {
	mu     sync.Mutex
	pages  map[string][]string
	errs   map[string]error
	calls  map[string]int
	params map[string]url.Values
}

func newRouteFetcher() *routeFetcher {
	return &routeFetcher{
		pages:  map[string][]string{},
		errs:   map[string]error{},
		calls:  map[string]int{},
		params: map[string]url.Values{},
	}
}

func (f *routeFetcher) route(endpoint string, pages ...any) {
	for _, p := range pages {
		b, err := json.Marshal(p)
		if err != nil {
			panic(err)
		}
		f.pages[endpoint] = append(f.pages[endpoint], string(b))
	}
}

func (f *routeFetcher) Fetch(ctx context.Context, endpoint string, params url.Values) (*github.RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[endpoint]++
	f.params[endpoint] = params

	page, _ := strconv.Atoi(params.Get("page"))
	if page == 0 {
		page = 1
	}
	if err, ok := f.errs[fmt.Sprintf("%s#%d", endpoint, page)]; ok {
		return nil, err
	}
	if err, ok := f.errs[endpoint]; ok {
		return nil, err
	}

	pages := f.pages[endpoint]
	if page > len(pages) {
		if len(pages) == 0 && params.Get("page") == "" {
			return nil, fmt.Errorf("%w: no fixture for %s", github.ErrNotFound, endpoint)
		}
		return &github.RawResponse{StatusCode: 200, Body: []byte(`[]`)}, nil
	}
	resp := &github.RawResponse{StatusCode: 200, Body: []byte(pages[page-1])}
	if page < len(pages) {
		resp.Next = fmt.Sprintf("https://api.github.com%s?page=%d", endpoint, page+1)
	}
	return resp, nil
}

func event(id, typ, repo string, at time.Time) map[string]any {
	return map[string]any{
		"id":         id,
		"type":       typ,
		"actor":      map[string]any{"login": "octocat"},
		"repo":       map[string]any{"name": repo},
		"created_at": at.Format(time.RFC3339),
		"payload":    map[string]any{"ref": "refs/heads/main", "head": "h" + id, "commits": []any{map[string]any{}}},
	}
}

func repo(name string, pushed time.Time, fork bool) map[string]any {
	return map[string]any{
		"name":      name,
		"full_name": "octocat/" + name,
		"owner":     map[string]any{"login": "octocat"},
		"fork":      fork,
		"pushed_at": pushed.Format(time.RFC3339),
		"html_url":  "https://github.com/octocat/" + name,
	}
}

func commit(sha string, at time.Time) map[string]any {
	return map[string]any{
		"sha": sha,
		"commit": map[string]any{
			"message": "fix: " + sha,
			"author":  map[string]any{"name": "Octo Cat", "email": "octo@example.com", "date": at.Format(time.RFC3339)},
		},
		"author":   map[string]any{"login": "octocat"},
		"html_url": "https://github.com/c/" + sha,
	}
}

func searchItem(repoName string, number int, updated time.Time, pr bool) map[string]any {
	item := map[string]any{
		"number":         number,
		"title":          fmt.Sprintf("item %d", number),
		"state":          "open",
		"repository_url": "https://api.github.com/repos/octocat/" + repoName,
		"created_at":     updated.Add(-time.Hour).Format(time.RFC3339),
		"updated_at":     updated.Format(time.RFC3339),
		"labels":         []any{map[string]any{"name": "bug"}},
	}
	if pr {
		item["pull_request"] = map[string]any{"merged_at": updated.Format(time.RFC3339)}
	}
	return item
}

func newTestAggregator(f github.Fetcher) *Aggregator {
	return New(f, Options{
		Concurrency:       3,
		MaxRepositories:   10,
		MaxCommitsPerRepo: 100,
		MaxCommitDetails:  10,
		Now:               func() time.Time { return now },
	})
}

func TestAggregateWindowScenario(t *testing.T) {
	f := newRouteFetcher()
	f.route("/users/octocat/events", []any{
		event("2", "PushEvent", "octocat/hello", daysAgo(2)),
		event("10", "PushEvent", "octocat/hello", daysAgo(10)),
	})

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{Events: true})
	require.NoError(t, err)

	require.Len(t, summary.Events, 1)
	assert.Equal(t, "2", summary.Events[0].ID)
	assert.Equal(t, map[string]int{"PushEvent": 1}, summary.EventCountsByType)
	assert.Equal(t, 1, summary.TotalEvents)
	assert.Equal(t, []string{"octocat/hello"}, summary.ActiveRepositories)
	assert.Equal(t, 1, summary.Events[0].Payload["commits"])
	assert.Empty(t, summary.Warnings)
	assert.False(t, summary.Partial)
}

func TestAggregateDedupesOverlappingPages(t *testing.T) {
	f := newRouteFetcher()
	f.route("/users/octocat/events",
		[]any{event("3", "PushEvent", "octocat/a", daysAgo(1)), event("2", "WatchEvent", "octocat/b", daysAgo(2))},
		[]any{event("2", "WatchEvent", "octocat/b", daysAgo(2)), event("1", "PushEvent", "octocat/a", daysAgo(3))},
	)

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{Events: true})
	require.NoError(t, err)

	var got []string
	for _, e := range summary.Events {
		got = append(got, e.ID)
	}
	assert.Equal(t, []string{"3", "2", "1"}, got)
	assert.Equal(t, map[string]int{"PushEvent": 2, "WatchEvent": 1}, summary.EventCountsByType)
}

func TestAggregateEventsPartialPage(t *testing.T) {
	f := newRouteFetcher()
	f.route("/users/octocat/events",
		[]any{event("3", "PushEvent", "octocat/a", daysAgo(1))},
		[]any{event("2", "PushEvent", "octocat/a", daysAgo(2))},
	)
	f.errs["/users/octocat/events#2"] = fmt.Errorf("%w: status code 502", github.ErrRemoteUnavailable)

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{Events: true})
	require.NoError(t, err)

	assert.Len(t, summary.Events, 1)
	assert.True(t, summary.Partial)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, models.WarningPartialResult, summary.Warnings[0].Kind)
}

func commitFixture() *routeFetcher {
	f := newRouteFetcher()
	f.route("/users/octocat/repos", []any{
		repo("one", daysAgo(1), false),
		repo("forked", daysAgo(2), true),
		repo("two", daysAgo(3), false),
		repo("three", daysAgo(4), false),
		repo("stale", daysAgo(60), false),
		repo("never-reached", daysAgo(1), false),
	})
	f.route("/repos/octocat/one/commits", []any{commit("aaa", daysAgo(1)), commit("ccc", daysAgo(5))})
	f.route("/repos/octocat/two/commits", []any{commit("bbb", daysAgo(2)), commit("aaa", daysAgo(1))})
	f.errs["/repos/octocat/three/commits"] = fmt.Errorf("%w: status code 409", github.ErrRemoteUnavailable)
	return f
}

func TestAggregateCommitsFanOut(t *testing.T) {
	f := commitFixture()

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 30), Kinds{Commits: true})
	require.NoError(t, err)

	var shas []string
	for _, c := range summary.Commits {
		shas = append(shas, c.SHA)
	}
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, shas)
	assert.Equal(t, "octocat", summary.Commits[0].Author)

	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, models.WarningPartialAggregation, summary.Warnings[0].Kind)
	assert.Equal(t, "octocat/three", summary.Warnings[0].Scope)
	assert.False(t, summary.Partial)

	assert.Zero(t, f.calls["/repos/octocat/forked/commits"], "forks skipped")
	assert.Zero(t, f.calls["/repos/octocat/stale/commits"], "repos not pushed in window skipped")
	assert.Zero(t, f.calls["/repos/octocat/never-reached/commits"], "walk stops at the first stale repo")

	p := f.params["/repos/octocat/one/commits"]
	assert.Equal(t, "octocat", p.Get("author"))
	assert.Equal(t, daysAgo(30).Format(time.RFC3339), p.Get("since"))
	assert.Equal(t, "owner", f.params["/users/octocat/repos"].Get("type"))
	assert.Equal(t, "pushed", f.params["/users/octocat/repos"].Get("sort"))
}

func TestAggregateIsDeterministic(t *testing.T) {
	var first *models.ActivitySummary
	for i := 0; i < 5; i++ {
		summary, err := newTestAggregator(commitFixture()).Aggregate(context.Background(), "octocat", models.LastDays(now, 30), Kinds{Commits: true})
		require.NoError(t, err)
		if first == nil {
			first = summary
			continue
		}
		assert.Equal(t, first, summary)
	}
}

func failingReposFixture() *routeFetcher {
	f := newRouteFetcher()
	var repos []any
	for _, name := range []string{"r1", "r2", "r3", "r4", "r5", "r6"} {
		repos = append(repos, repo(name, daysAgo(1), false))
		f.errs["/repos/octocat/"+name+"/commits"] = fmt.Errorf("%w: status code 502", github.ErrRemoteUnavailable)
	}
	f.route("/users/octocat/repos", repos)
	return f
}

func TestAggregateWarningsAreOrdered(t *testing.T) {
	var first []models.Warning
	for i := 0; i < 50; i++ {
		summary, err := newTestAggregator(failingReposFixture()).Aggregate(context.Background(), "octocat", models.LastDays(now, 30), Kinds{Commits: true})
		require.NoError(t, err)
		require.Len(t, summary.Warnings, 6)
		if first == nil {
			first = summary.Warnings
			continue
		}
		assert.Equal(t, first, summary.Warnings)
	}

	assert.True(t, sort.SliceIsSorted(first, func(i, j int) bool { return first[i].Scope < first[j].Scope }))
	assert.Equal(t, "octocat/r1", first[0].Scope)
	assert.Equal(t, "octocat/r6", first[5].Scope)

	list, err := newTestAggregator(failingReposFixture()).UserCommits(context.Background(), "octocat", daysAgo(30), 10)
	require.NoError(t, err)
	assert.Equal(t, first, list.Warnings)
}

func TestAggregateRepositoryListingFailureIsAWarning(t *testing.T) {
	f := newRouteFetcher()
	f.route("/users/octocat/events", []any{event("2", "PushEvent", "octocat/hello", daysAgo(2))})
	f.route("/search/issues", map[string]any{"items": []any{searchItem("hello", 4, daysAgo(1), false)}})
	f.errs["/users/octocat/repos"] = fmt.Errorf("%w: status code 502 after 4 attempts", github.ErrRemoteUnavailable)

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), AllKinds())
	require.NoError(t, err)

	require.Len(t, summary.Events, 1)
	assert.Equal(t, "2", summary.Events[0].ID)
	require.Len(t, summary.Issues, 1)
	assert.NotNil(t, summary.Commits)
	assert.Empty(t, summary.Commits)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, models.WarningPartialAggregation, summary.Warnings[0].Kind)
	assert.Equal(t, "octocat repositories", summary.Warnings[0].Scope)
	assert.Contains(t, summary.Warnings[0].Message, "502")
}

func TestAggregateRepositoryListingFatalErrors(t *testing.T) {
	for _, fatal := range []error{github.ErrUnauthorized, github.ErrNotFound} {
		t.Run(fatal.Error(), func(t *testing.T) {
			f := newRouteFetcher()
			f.route("/users/octocat/events", []any{event("2", "PushEvent", "octocat/hello", daysAgo(2))})
			f.errs["/users/octocat/repos"] = fatal

			_, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{Events: true, Commits: true})
			assert.ErrorIs(t, err, fatal)
		})
	}
}

// peakFetcher records the highest number of concurrent Fetch calls per
// endpoint class while holding each call open briefly.
type peakFetcher struct {
	next     github.Fetcher
	classify func(endpoint string) string

	mu       sync.Mutex
	inFlight map[string]int
	peak     map[string]int
	total    atomic.Int64
}

func newPeakFetcher(next github.Fetcher, classify func(string) string) *peakFetcher {
	return &peakFetcher{next: next, classify: classify, inFlight: map[string]int{}, peak: map[string]int{}}
}

func (f *peakFetcher) Fetch(ctx context.Context, endpoint string, params url.Values) (*github.RawResponse, error) {
	class := f.classify(endpoint)
	f.mu.Lock()
	f.inFlight[class]++
	if f.inFlight[class] > f.peak[class] {
		f.peak[class] = f.inFlight[class]
	}
	f.mu.Unlock()
	f.total.Add(1)

	defer func() {
		f.mu.Lock()
		f.inFlight[class]--
		f.mu.Unlock()
	}()
	time.Sleep(20 * time.Millisecond)
	return f.next.Fetch(ctx, endpoint, params)
}

func (f *peakFetcher) peakOf(class string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak[class]
}

func TestAggregateFanOutIsBounded(t *testing.T) {
	routes := newRouteFetcher()
	var repos []any
	for i := 1; i <= 8; i++ {
		name := fmt.Sprintf("r%d", i)
		sha := fmt.Sprintf("sha%d", i)
		repos = append(repos, repo(name, daysAgo(1), false))
		routes.route("/repos/octocat/"+name+"/commits", []any{commit(sha, daysAgo(1))})
		detail := commit(sha, daysAgo(1))
		detail["files"] = []any{map[string]any{"filename": "main.go", "additions": 1, "status": "added"}}
		routes.route("/repos/octocat/"+name+"/commits/"+sha, detail)
	}
	routes.route("/users/octocat/repos", repos)

	f := newPeakFetcher(routes, func(endpoint string) string {
		switch {
		case strings.HasSuffix(endpoint, "/commits"):
			return "commits"
		case strings.Contains(endpoint, "/commits/"):
			return "details"
		default:
			return "other"
		}
	})

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{CommitFiles: true})
	require.NoError(t, err)
	require.Len(t, summary.Commits, 8)
	for _, c := range summary.Commits {
		assert.Len(t, c.Files, 1, c.SHA)
	}

	assert.LessOrEqual(t, f.peakOf("commits"), 3)
	assert.LessOrEqual(t, f.peakOf("details"), 3)
	assert.Greater(t, f.peakOf("commits"), 1, "commit walks run in parallel")
	assert.Greater(t, f.peakOf("details"), 1, "commit details run in parallel")
	assert.EqualValues(t, 1+8+8, f.total.Load())
}

func TestAggregatePageCap(t *testing.T) {
	f := newRouteFetcher()
	f.route("/users/octocat/events",
		[]any{event("3", "PushEvent", "octocat/a", daysAgo(1))},
		[]any{event("2", "PushEvent", "octocat/a", daysAgo(2))},
		[]any{event("1", "PushEvent", "octocat/a", daysAgo(3))},
	)
	f.route("/search/issues",
		map[string]any{"items": []any{searchItem("a", 3, daysAgo(1), false)}},
		map[string]any{"items": []any{searchItem("a", 2, daysAgo(2), false)}},
		map[string]any{"items": []any{searchItem("a", 1, daysAgo(3), false)}},
	)

	agg := New(f, Options{Concurrency: 3, MaxPages: 2, Now: func() time.Time { return now }})
	summary, err := agg.Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{Events: true, Issues: true})
	require.NoError(t, err)

	assert.Len(t, summary.Events, 2)
	assert.Len(t, summary.Issues, 2)
	assert.Equal(t, 2, f.calls["/users/octocat/events"])
	assert.Equal(t, 2, f.calls["/search/issues"])
}

func TestAggregateCommitFiles(t *testing.T) {
	f := newRouteFetcher()
	f.route("/users/octocat/repos", []any{repo("one", daysAgo(1), false)})
	f.route("/repos/octocat/one/commits", []any{commit("aaa", daysAgo(1)), commit("bbb", daysAgo(2))})
	detail := commit("aaa", daysAgo(1))
	detail["files"] = []any{
		map[string]any{"filename": "app.py", "additions": 50, "deletions": 5, "status": "modified"},
	}
	f.route("/repos/octocat/one/commits/aaa", detail)
	f.errs["/repos/octocat/one/commits/bbb"] = github.ErrNotFound

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{CommitFiles: true})
	require.NoError(t, err)

	require.Len(t, summary.Commits, 2)
	assert.Equal(t, []models.FileChange{{Path: "app.py", Additions: 50, Deletions: 5, Status: "modified"}}, summary.Commits[0].Files)
	assert.Empty(t, summary.Commits[1].Files)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, "octocat/one@bbb", summary.Warnings[0].Scope)
}

func TestAggregateIssuesAndPullRequests(t *testing.T) {
	f := newRouteFetcher()
	f.route("/search/issues", map[string]any{
		"total_count": 4,
		"items": []any{
			searchItem("a", 7, daysAgo(1), true),
			searchItem("a", 3, daysAgo(2), false),
			searchItem("b", 3, daysAgo(2), false),
			searchItem("b", 9, daysAgo(20), false),
		},
	})

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{Issues: true, PullRequests: true})
	require.NoError(t, err)

	require.Len(t, summary.PullRequests, 1)
	assert.Equal(t, 7, summary.PullRequests[0].Number)
	assert.True(t, summary.PullRequests[0].Merged)

	require.Len(t, summary.Issues, 2)
	assert.Equal(t, "octocat/a#3", summary.Issues[0].Key())
	assert.Equal(t, "octocat/b#3", summary.Issues[1].Key())
	assert.Equal(t, []string{"bug"}, summary.Issues[0].Labels)

	q := f.params["/search/issues"].Get("q")
	assert.Equal(t, "involves:octocat updated:>="+daysAgo(7).Format("2006-01-02"), q)
}

func TestAggregateSearchFailureIsAWarning(t *testing.T) {
	f := newRouteFetcher()
	f.route("/users/octocat/events", []any{event("1", "PushEvent", "octocat/a", daysAgo(1))})
	f.errs["/search/issues"] = fmt.Errorf("%w: %w", github.ErrRemoteUnavailable, github.ErrRateLimited)

	summary, err := newTestAggregator(f).Aggregate(context.Background(), "octocat", models.LastDays(now, 7), Kinds{Events: true, Issues: true, PullRequests: true})
	require.NoError(t, err)

	assert.Len(t, summary.Events, 1)
	assert.Empty(t, summary.Issues)
	assert.NotNil(t, summary.PullRequests)
	require.Len(t, summary.Warnings, 1)
	assert.Equal(t, "search/issues", summary.Warnings[0].Scope)
}

func TestAggregateUnknownSubject(t *testing.T) {
	f := newRouteFetcher()
	f.errs["/users/ghost/events"] = fmt.Errorf("%w: status code 404", github.ErrNotFound)

	_, err := newTestAggregator(f).Aggregate(context.Background(), "ghost", models.LastDays(now, 7), AllKinds())
	assert.ErrorIs(t, err, github.ErrNotFound)
}

func TestAggregateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAggregator(commitFixture()).Aggregate(ctx, "octocat", models.LastDays(now, 7), AllKinds())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUserCommitsLimit(t *testing.T) {
	f := commitFixture()

	list, err := newTestAggregator(f).UserCommits(context.Background(), "octocat", daysAgo(30), 2)
	require.NoError(t, err)

	require.Len(t, list.Commits, 2)
	assert.Equal(t, "aaa", list.Commits[0].SHA)
	assert.Equal(t, "bbb", list.Commits[1].SHA)
	assert.Equal(t, daysAgo(30), list.Since)
	assert.Len(t, list.Warnings, 1)
}

func TestUserCommitsRejectsFutureSince(t *testing.T) {
	_, err := newTestAggregator(newRouteFetcher()).UserCommits(context.Background(), "octocat", now.Add(time.Hour), 10)
	assert.ErrorIs(t, err, models.ErrInvalidWindow)
}

func TestUserAndRepositoryEvents(t *testing.T) {
	f := newRouteFetcher()
	f.route("/users/octocat/events", []any{
		event("5", "PushEvent", "octocat/a", daysAgo(1)),
		event("4", "PushEvent", "octocat/a", daysAgo(40)),
		event("3", "PushEvent", "octocat/a", daysAgo(50)),
	})
	f.route("/repos/octocat/a/events", []any{event("9", "ForkEvent", "octocat/a", daysAgo(3))})
	agg := newTestAggregator(f)

	events, err := agg.UserEvents(context.Background(), "octocat", 2)
	require.NoError(t, err)
	require.Len(t, events.Events, 2)
	assert.Equal(t, "4", events.Events[1].ID, "no window applies to plain event listings")

	repoEvents, err := agg.RepositoryEvents(context.Background(), "octocat", "a", 30)
	require.NoError(t, err)
	assert.Equal(t, "octocat/a", repoEvents.Subject)
	require.Len(t, repoEvents.Events, 1)
	assert.Equal(t, "ForkEvent", repoEvents.Events[0].Type)
}
