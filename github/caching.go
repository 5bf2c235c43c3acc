package github

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"githubactivity/cache"
)

// CachingFetcher serves repeated page requests from a TTL cache and
// collapses concurrent identical requests into one upstream fetch.
type CachingFetcher struct {
	next  Fetcher
	cache *cache.Cache[*RawResponse]
	ttl   time.Duration
}

func NewCachingFetcher(next Fetcher, c *cache.Cache[*RawResponse], ttl time.Duration) *CachingFetcher {
	return &CachingFetcher{next: next, cache: c, ttl: ttl}
}

func (f *CachingFetcher) Fetch(ctx context.Context, endpoint string, params url.Values) (*RawResponse, error) {
	key := cache.Key(endpoint, params)
	return f.cache.GetOrFetch(ctx, key, f.ttl, func(ctx context.Context) (*RawResponse, error) {
		return f.next.Fetch(ctx, endpoint, params)
	})
}

// Endpoint paths. Names must already be validated; they are not escaped.

func UserEventsPath(username string) string {
	return fmt.Sprintf("/users/%s/events", username)
}

func RepoEventsPath(owner, repo string) string {
	return fmt.Sprintf("/repos/%s/%s/events", owner, repo)
}

func UserReposPath(username string) string {
	return fmt.Sprintf("/users/%s/repos", username)
}

// RepoCommitsPath takes the repository's owner/name.
func RepoCommitsPath(fullName string) string {
	return fmt.Sprintf("/repos/%s/commits", fullName)
}

func CommitPath(fullName, sha string) string {
	return fmt.Sprintf("/repos/%s/commits/%s", fullName, sha)
}

const SearchIssuesPath = "/search/issues"
